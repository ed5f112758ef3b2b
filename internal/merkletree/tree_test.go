package merkletree

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/field"
	"github.com/kvpair-io/kvpair-server/internal/poseidon"
)

const testCollection = "MERKLEDATA_test"

const firstLeaf = uint64(LeafCount - 1) // 2^H - 1

func dataWithByte0(v byte) [32]byte {
	var d [32]byte
	d[0] = v // little-endian value v
	return d
}

// Scenario 1: empty tree root.
func TestScenarioEmptyTreeRoot(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	root, err := e.GetRoot(context.Background(), testCollection)
	require.NoError(t, err)
	require.Equal(t, DefaultRoot(), root)

	var zero field.Element
	wantLeaf := field.ToBytes(poseidon.HashLeaf(zero))
	require.Equal(t, wantLeaf, DefaultHash(Height))
}

// Scenario 2: single leaf set.
func TestScenarioSingleLeafSet(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	leaf, siblings, newRoot, err := e.SetLeaf(ctx, testCollection, firstLeaf, dataWithByte0(1), ProofV0)
	require.NoError(t, err)

	one, err := field.FromBytes(dataWithByte0(1))
	require.NoError(t, err)
	wantHash := field.ToBytes(poseidon.HashLeaf(one))
	require.Equal(t, wantHash, leaf.Hash)

	require.Len(t, siblings, Height)
	for d := Height; d >= 1; d-- {
		require.Equal(t, DefaultHash(d), siblings[d-1], "sibling at depth %d", d)
	}

	require.True(t, Verify(firstLeaf, leaf.Hash, siblings, newRoot))

	gotRoot, err := e.GetRoot(ctx, testCollection)
	require.NoError(t, err)
	require.Equal(t, newRoot, gotRoot)
}

// Scenario 3: read-your-writes across leaf and non-leaf.
func TestScenarioReadYourWrites(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	leaf, siblings, newRoot, err := e.SetLeaf(ctx, testCollection, firstLeaf, dataWithByte0(1), ProofV0)
	require.NoError(t, err)

	nonLeaf, err := e.GetNonLeaf(ctx, testCollection, 0, newRoot)
	require.NoError(t, err)

	// Recompute the hash on the path from the leaf to the root's left
	// child (depth 1) and confirm it matches.
	h := leaf.Hash
	idx := firstLeaf
	for d := Height - 1; d >= 1; d-- {
		sib := siblings[d]
		var l, r field.Bytes
		if isLeftChild(idx) {
			l, r = h, sib
		} else {
			l, r = sib, h
		}
		le, err := field.FromBytes(l)
		require.NoError(t, err)
		re, err := field.FromBytes(r)
		require.NoError(t, err)
		h = field.ToBytes(poseidon.HashNode(le, re))
		idx = parent(idx)
	}
	require.Equal(t, h, nonLeaf.Left)
	require.Equal(t, DefaultHash(1), nonLeaf.Right)
}

// Scenario 4: hash mismatch.
func TestScenarioHashMismatch(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	_, _, _, err := e.SetLeaf(ctx, testCollection, firstLeaf, dataWithByte0(1), ProofNone)
	require.NoError(t, err)

	_, err = e.GetNonLeaf(ctx, testCollection, 0, Hash{})
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.HashMismatch, kind)
}

// Scenario 5 / P6: two leaves, order independence.
func TestScenarioOrderIndependence(t *testing.T) {
	l1 := firstLeaf
	l2 := firstLeaf + 1
	d1 := dataWithByte0(7)
	d2 := dataWithByte0(9)

	storeA := newMemStore()
	eA := NewEngine(storeA)
	ctx := context.Background()
	_, _, _, err := eA.SetLeaf(ctx, testCollection, l1, d1, ProofNone)
	require.NoError(t, err)
	_, _, rootA, err := eA.SetLeaf(ctx, testCollection, l2, d2, ProofNone)
	require.NoError(t, err)

	storeB := newMemStore()
	eB := NewEngine(storeB)
	_, _, _, err = eB.SetLeaf(ctx, testCollection, l2, d2, ProofNone)
	require.NoError(t, err)
	_, _, rootB, err := eB.SetLeaf(ctx, testCollection, l1, d1, ProofNone)
	require.NoError(t, err)

	require.Equal(t, rootA, rootB)
}

// Scenario 6: index out of range.
func TestScenarioIndexOutOfRange(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	_, _, err := e.GetLeaf(context.Background(), testCollection, 0, nil, ProofNone)
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidIndex, kind)
}

// P1: a leaf set via SetLeaf is returned identically by GetLeaf.
func TestGetLeafAfterSetLeaf(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	leaf, _, _, err := e.SetLeaf(ctx, testCollection, firstLeaf+5, dataWithByte0(42), ProofNone)
	require.NoError(t, err)

	got, _, err := e.GetLeaf(ctx, testCollection, firstLeaf+5, nil, ProofNone)
	require.NoError(t, err)
	require.Equal(t, leaf.Hash, got.Hash)
	require.Equal(t, leaf.Data, got.Data)
}

// P5: idempotence.
func TestSetLeafIdempotent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	_, _, root1, err := e.SetLeaf(ctx, testCollection, firstLeaf, dataWithByte0(3), ProofNone)
	require.NoError(t, err)
	_, _, root2, err := e.SetLeaf(ctx, testCollection, firstLeaf, dataWithByte0(3), ProofNone)
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}

// P7: concurrent SetLeaf calls on distinct indices serialize to the same
// root as any sequential application of the same updates.
func TestConcurrentSetLeafMatchesSequential(t *testing.T) {
	indices := []uint64{firstLeaf, firstLeaf + 1, firstLeaf + 2, firstLeaf + 3}
	datas := [][32]byte{dataWithByte0(1), dataWithByte0(2), dataWithByte0(3), dataWithByte0(4)}

	seqStore := newMemStore()
	seqEngine := NewEngine(seqStore)
	ctx := context.Background()
	var seqRoot Hash
	for i, idx := range indices {
		_, _, r, err := seqEngine.SetLeaf(ctx, testCollection, idx, datas[i], ProofNone)
		require.NoError(t, err)
		seqRoot = r
	}

	concStore := newMemStore()
	concEngine := NewEngine(concStore)
	var wg sync.WaitGroup
	for i, idx := range indices {
		wg.Add(1)
		go func(idx uint64, data [32]byte) {
			defer wg.Done()
			for {
				_, _, _, err := concEngine.SetLeaf(ctx, testCollection, idx, data, ProofNone)
				if err == nil {
					return
				}
				if kind, ok := apierr.Of(err); ok && kind == apierr.StorageConflict {
					continue
				}
				require.NoError(t, err)
				return
			}
		}(idx, datas[i])
	}
	wg.Wait()

	concRoot, err := concEngine.GetRoot(ctx, testCollection)
	require.NoError(t, err)
	require.Equal(t, seqRoot, concRoot)
}

func TestSetNonLeafRejectsRoot(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	_, err := e.SetNonLeaf(context.Background(), testCollection, 0, Hash{}, Hash{})
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidIndex, kind)
}

func TestCodecNodeRoundTrip(t *testing.T) {
	n, err := newLeaf(firstLeaf, dataWithByte0(5))
	require.NoError(t, err)
	encoded := EncodeNode(n)
	decoded, err := DecodeNode(encoded)
	require.NoError(t, err)
	require.Equal(t, n, decoded)
}

func TestCodecProofRoundTrip(t *testing.T) {
	siblings := make([]Hash, Height)
	for i := range siblings {
		siblings[i] = DefaultHash(i + 1)
	}
	encoded := EncodeProof(siblings)
	decoded, err := DecodeProof(encoded)
	require.NoError(t, err)
	require.Equal(t, siblings, decoded)
}

func TestParseEnumsRejectUnknown(t *testing.T) {
	_, err := ParseNodeType("Bogus")
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidEnum, kind)

	_, err = ParseProofType("Bogus")
	require.Error(t, err)
	kind, ok = apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidEnum, kind)
}
