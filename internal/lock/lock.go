// Package lock implements the Concurrency Gate (§4.6): one logical mutex per
// tenant, held for the duration of any operation that writes a new root
// pointer.
package lock

import (
	"context"
	"sync"
)

// Gate serializes write operations per tenant. It generalizes this
// codebase's single batchMu sync.Mutex (guarding one global pending-update
// set) into one mutex per tenant key, keyed by the tenant's collection name
// so unrelated tenants never block each other.
type Gate struct {
	mus sync.Map // map[string]*sync.Mutex
}

// NewGate builds an empty in-process Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Lock blocks until key's mutex is acquired and returns a function that
// releases it. ctx is accepted to satisfy the same TenantLock interface the
// distributed gate uses; the in-process gate never needs to abort a wait.
func (g *Gate) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	v, _ := g.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return func(context.Context) error {
		mu.Unlock()
		return nil
	}, nil
}
