package merkletree

import (
	"context"
	"sync"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

// memStore is an in-memory NodeStore used by the engine's own tests, so
// they don't require a live MongoDB instance. It mimics the real adapter's
// conditional-root-update conflict detection (§4.4, §9).
type memStore struct {
	mu        sync.Mutex
	nodes     map[string]map[uint64]*Node
	roots     map[string]Hash
	dataHash  map[string]map[Hash][]byte
}

func newMemStore() *memStore {
	return &memStore{
		nodes:    map[string]map[uint64]*Node{},
		roots:    map[string]Hash{},
		dataHash: map[string]map[Hash][]byte{},
	}
}

func cloneNode(n *Node) *Node {
	c := *n
	return &c
}

func (m *memStore) LoadNode(_ context.Context, collection string, index uint64) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.nodes[collection]
	if !ok {
		return nil, nil
	}
	n, ok := tenant[index]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

func (m *memStore) GetRoot(_ context.Context, collection string) (Hash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roots[collection]
	return r, ok, nil
}

func (m *memStore) Commit(_ context.Context, collection string, updates []*Node, newRoot, expectedOldRoot Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roots[collection]
	if !ok {
		current = DefaultRoot()
	}
	if current != expectedOldRoot {
		return apierr.WrapRetryable(apierr.StorageConflict, "root changed since siblings were read", nil)
	}
	tenant, ok := m.nodes[collection]
	if !ok {
		tenant = map[uint64]*Node{}
		m.nodes[collection] = tenant
	}
	for _, n := range updates {
		tenant[n.Index] = cloneNode(n)
	}
	m.roots[collection] = newRoot
	return nil
}

func (m *memStore) PutNode(_ context.Context, collection string, n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.nodes[collection]
	if !ok {
		tenant = map[uint64]*Node{}
		m.nodes[collection] = tenant
	}
	tenant[n.Index] = cloneNode(n)
	return nil
}

func (m *memStore) PutRoot(_ context.Context, collection string, newRoot Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[collection] = newRoot
	return nil
}

func (m *memStore) LoadDataHash(_ context.Context, collection string, hash Hash) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.dataHash[collection]
	if !ok {
		return nil, false, nil
	}
	data, ok := tenant[hash]
	return data, ok, nil
}

func (m *memStore) StoreDataHash(_ context.Context, collection string, hash Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.dataHash[collection]
	if !ok {
		tenant = map[Hash][]byte{}
		m.dataHash[collection] = tenant
	}
	tenant[hash] = append([]byte(nil), data...)
	return nil
}
