package merkletree

import "context"

// NodeStore is the persistence contract the engine needs. A tenant is
// identified by its collection name (see internal/contract); the engine
// itself never interprets a ContractID.
//
// LoadNode returns the node currently stored at index, or nil if nothing has
// ever been written there (the engine then substitutes the default node for
// that depth). GetRoot returns the current root pointer and whether the
// tenant has ever been initialized — an uninitialized tenant's root is D[0].
//
// Commit writes every node in updates plus the new root pointer atomically,
// failing with StorageConflict (retryable) if expectedOldRoot no longer
// matches the persisted root, and StorageFatal for any other persistence
// failure.
//
// PutNode and PutRoot are the raw, invariant-unchecked writes backing
// SetNonLeaf and SetRoot: a single document overwrite with no root-pointer
// side effect (PutNode) or vice versa (PutRoot).
type NodeStore interface {
	LoadNode(ctx context.Context, collection string, index uint64) (*Node, error)
	GetRoot(ctx context.Context, collection string) (root Hash, initialized bool, err error)
	Commit(ctx context.Context, collection string, updates []*Node, newRoot, expectedOldRoot Hash) error
	PutNode(ctx context.Context, collection string, n *Node) error
	PutRoot(ctx context.Context, collection string, newRoot Hash) error

	LoadDataHash(ctx context.Context, collection string, hash Hash) (data []byte, found bool, err error)
	StoreDataHash(ctx context.Context, collection string, hash Hash, data []byte) error
}
