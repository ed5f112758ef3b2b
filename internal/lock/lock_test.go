package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestGateMutualExclusion is property P7's concurrency-gate half: k
// concurrent holders of the same tenant key never observe interleaved
// critical sections.
func TestGateMutualExclusion(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	const k = 32
	var active int32
	var maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := g.Lock(ctx, "tenant-a")
			require.NoError(t, err)
			defer unlock(ctx)

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
}

func TestGateDistinctTenantsIndependent(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	unlockA, err := g.Lock(ctx, "tenant-a")
	require.NoError(t, err)
	defer unlockA(ctx)

	done := make(chan struct{})
	go func() {
		unlockB, err := g.Lock(ctx, "tenant-b")
		require.NoError(t, err)
		unlockB(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct tenant should not block")
	}
}
