package store

import (
	"context"
	"sync"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

// Memory is an in-process implementation of merkletree.NodeStore, exported
// so Request Handler and transport tests can exercise the same adapter
// interface the real MongoDB-backed Mongo store satisfies without a live
// database (SPEC_FULL.md §8 EXPANSION).
type Memory struct {
	mu       sync.Mutex
	nodes    map[string]map[uint64]*merkletree.Node
	roots    map[string]merkletree.Hash
	dataHash map[string]map[merkletree.Hash][]byte
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		nodes:    map[string]map[uint64]*merkletree.Node{},
		roots:    map[string]merkletree.Hash{},
		dataHash: map[string]map[merkletree.Hash][]byte{},
	}
}

func cloneNode(n *merkletree.Node) *merkletree.Node {
	c := *n
	return &c
}

func (m *Memory) LoadNode(_ context.Context, collection string, index uint64) (*merkletree.Node, error) {
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

func (m *Memory) GetRoot(_ context.Context, collection string) (merkletree.Hash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roots[collection]
	return r, ok, nil
}

func (m *Memory) Commit(_ context.Context, collection string, updates []*merkletree.Node, newRoot, expectedOldRoot merkletree.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roots[collection]
	if !ok {
		current = merkletree.DefaultRoot()
	}
	if current != expectedOldRoot {
		return apierr.WrapRetryable(apierr.StorageConflict, "root changed since siblings were read", nil)
	}
	tenant, ok := m.nodes[collection]
	if !ok {
		tenant = map[uint64]*merkletree.Node{}
		m.nodes[collection] = tenant
	}
	for _, n := range updates {
		tenant[n.Index] = cloneNode(n)
	}
	m.roots[collection] = newRoot
	return nil
}

func (m *Memory) PutNode(_ context.Context, collection string, n *merkletree.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.nodes[collection]
	if !ok {
		tenant = map[uint64]*merkletree.Node{}
		m.nodes[collection] = tenant
	}
	tenant[n.Index] = cloneNode(n)
	return nil
}

func (m *Memory) PutRoot(_ context.Context, collection string, newRoot merkletree.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[collection] = newRoot
	return nil
}

func (m *Memory) LoadDataHash(_ context.Context, collection string, hash merkletree.Hash) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.dataHash[collection]
	if !ok {
		return nil, false, nil
	}
	data, ok := tenant[hash]
	return data, ok, nil
}

func (m *Memory) StoreDataHash(_ context.Context, collection string, hash merkletree.Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.dataHash[collection]
	if !ok {
		tenant = map[merkletree.Hash][]byte{}
		m.dataHash[collection] = tenant
	}
	tenant[hash] = append([]byte(nil), data...)
	return nil
}
