package merkletree

import (
	"context"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

// Engine is the store-backed state machine implementing §4.3: default-node
// resolution, GetLeaf/GetNonLeaf, SetLeaf's recompute-and-commit path, and
// the diagnostic SetNonLeaf/SetRoot escape hatches. It has no transport or
// tenant-lock concerns of its own; callers serialize write operations per
// tenant themselves (internal/lock).
type Engine struct {
	store NodeStore
}

// NewEngine builds an Engine over the given NodeStore.
func NewEngine(store NodeStore) *Engine {
	return &Engine{store: store}
}

// resolve loads the node at index, synthesizing the default node for its
// depth when nothing has been written there. It also re-checks invariants
// I3/I4 against whatever was actually persisted, raising Internal on a
// mismatch (data corruption, not a caller error).
func (e *Engine) resolve(ctx context.Context, collection string, index uint64) (*Node, error) {
	stored, err := e.store.LoadNode(ctx, collection, index)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return e.defaultNode(index), nil
	}
	if err := e.checkInvariant(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (e *Engine) defaultNode(index uint64) *Node {
	if IsLeafIndex(index) {
		return &Node{Index: index, Type: NodeTypeLeaf, Hash: DefaultHash(Height)}
	}
	d := depth(index)
	child := DefaultHash(d + 1)
	return &Node{Index: index, Type: NodeTypeNonLeaf, Left: child, Right: child, Hash: DefaultHash(d)}
}

func (e *Engine) checkInvariant(n *Node) error {
	var recomputed *Node
	var err error
	switch n.Type {
	case NodeTypeLeaf:
		recomputed, err = newLeaf(n.Index, n.Data)
	case NodeTypeNonLeaf:
		recomputed, err = newNonLeaf(n.Index, n.Left, n.Right)
	default:
		return apierr.New(apierr.Internal, "stored node has unknown type")
	}
	if err != nil {
		return apierr.Wrap(apierr.Internal, "stored node payload is not a valid field element", err)
	}
	if recomputed.Hash != n.Hash {
		return apierr.New(apierr.Internal, "stored node hash does not match its payload (I3/I4 violation)")
	}
	return nil
}

// resolveHash is resolve but returns only the hash, used while walking a
// sibling path where the sibling's own type/payload is not needed.
func (e *Engine) resolveHash(ctx context.Context, collection string, index uint64) (Hash, error) {
	n, err := e.resolve(ctx, collection, index)
	if err != nil {
		return Hash{}, err
	}
	return n.Hash, nil
}

// siblingPath returns the H sibling hashes from leafIndex up to (but not
// including) the root, ordered siblings[H-1]..siblings[0] to match the
// verify() convention in proof.go.
func (e *Engine) siblingPath(ctx context.Context, collection string, leafIndex uint64) ([]Hash, error) {
	siblings := make([]Hash, Height)
	idx := leafIndex
	for d := Height - 1; d >= 0; d-- {
		h, err := e.resolveHash(ctx, collection, siblingIndex(idx))
		if err != nil {
			return nil, err
		}
		siblings[d] = h
		idx = parent(idx)
	}
	return siblings, nil
}

// GetLeaf implements §4.3 GetLeaf. expectedHash is optional (pass nil to
// skip the check).
func (e *Engine) GetLeaf(ctx context.Context, collection string, index uint64, expectedHash *Hash, proofType ProofType) (*Node, []Hash, error) {
	if !IsLeafIndex(index) {
		return nil, nil, apierr.New(apierr.InvalidIndex, "index is not a leaf index")
	}
	n, err := e.resolve(ctx, collection, index)
	if err != nil {
		return nil, nil, err
	}
	if expectedHash != nil && n.Hash != *expectedHash {
		return nil, nil, apierr.New(apierr.HashMismatch, "resolved leaf hash does not match expected_hash")
	}
	var siblings []Hash
	if proofType == ProofV0 {
		siblings, err = e.siblingPath(ctx, collection, index)
		if err != nil {
			return nil, nil, err
		}
	}
	return n, siblings, nil
}

// GetNonLeaf implements §4.3 GetNonLeaf. expectedHash is required.
func (e *Engine) GetNonLeaf(ctx context.Context, collection string, index uint64, expectedHash Hash) (*Node, error) {
	if IsLeafIndex(index) || !ValidIndex(index) {
		return nil, apierr.New(apierr.InvalidIndex, "index is not a non-leaf index")
	}
	n, err := e.resolve(ctx, collection, index)
	if err != nil {
		return nil, err
	}
	if n.Hash != expectedHash {
		return nil, apierr.New(apierr.HashMismatch, "resolved non-leaf hash does not match expected_hash")
	}
	return n, nil
}

// SetLeaf implements §4.3 SetLeaf: read siblings first (no speculative
// transaction per §5), recompute the path, and commit the leaf, every
// non-leaf on the path, and the new root in one transaction. It returns the
// updated leaf, the pre-update sibling path (if proofType is ProofV0 — this
// describes the new leaf against the new root, per the design notes), and
// the new root.
func (e *Engine) SetLeaf(ctx context.Context, collection string, index uint64, data [32]byte, proofType ProofType) (*Node, []Hash, Hash, error) {
	if !IsLeafIndex(index) {
		return nil, nil, Hash{}, apierr.New(apierr.InvalidIndex, "index is not a leaf index")
	}

	oldRoot, err := e.GetRoot(ctx, collection)
	if err != nil {
		return nil, nil, Hash{}, err
	}

	siblings, err := e.siblingPath(ctx, collection, index)
	if err != nil {
		return nil, nil, Hash{}, err
	}

	leaf, err := newLeaf(index, data)
	if err != nil {
		return nil, nil, Hash{}, err
	}

	updates := make([]*Node, 0, Height+1)
	updates = append(updates, leaf)

	idx := index
	h := leaf.Hash
	for d := Height - 1; d >= 0; d-- {
		sib := siblings[d]
		var left, right Hash
		if isLeftChild(idx) {
			left, right = h, sib
		} else {
			left, right = sib, h
		}
		parentIdx := parent(idx)
		nl, err := newNonLeaf(parentIdx, left, right)
		if err != nil {
			return nil, nil, Hash{}, err
		}
		updates = append(updates, nl)
		h = nl.Hash
		idx = parentIdx
	}
	newRoot := h

	if err := e.store.Commit(ctx, collection, updates, newRoot, oldRoot); err != nil {
		return nil, nil, Hash{}, err
	}

	if proofType != ProofV0 {
		siblings = nil
	}
	return leaf, siblings, newRoot, nil
}

// SetNonLeaf overwrites a non-leaf's stored value without recomputing
// parents or the root pointer. Diagnostic/migration use only: it does not
// preserve I3/I4 against the rest of the tree and callers are responsible
// for the consequences. Rejects index==0 (that is SetRoot's job).
func (e *Engine) SetNonLeaf(ctx context.Context, collection string, index uint64, left, right Hash) (*Node, error) {
	if index == 0 {
		return nil, apierr.New(apierr.InvalidIndex, "index 0 is the root; use SetRoot")
	}
	if IsLeafIndex(index) || !ValidIndex(index) {
		return nil, apierr.New(apierr.InvalidIndex, "index is not a non-leaf index")
	}
	n, err := newNonLeaf(index, left, right)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutNode(ctx, collection, n); err != nil {
		return nil, err
	}
	return n, nil
}

// SetRoot overwrites the tenant's root pointer directly. Diagnostic/
// migration use only: it does not recompute or verify the tree beneath the
// new root.
func (e *Engine) SetRoot(ctx context.Context, collection string, newRoot Hash) (Hash, error) {
	if err := e.store.PutRoot(ctx, collection, newRoot); err != nil {
		return Hash{}, err
	}
	return newRoot, nil
}

// GetRoot returns the tenant's current root, or D[0] if the tenant has never
// been written.
func (e *Engine) GetRoot(ctx context.Context, collection string) (Hash, error) {
	root, initialized, err := e.store.GetRoot(ctx, collection)
	if err != nil {
		return Hash{}, err
	}
	if !initialized {
		return DefaultRoot(), nil
	}
	return root, nil
}
