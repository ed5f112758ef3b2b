package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

func TestNodeDocRoundTripLeaf(t *testing.T) {
	n := &merkletree.Node{Index: 123, Type: merkletree.NodeTypeLeaf}
	n.Data[0] = 0xaa
	n.Hash[0] = 0xbb

	doc := toDoc(n)
	require.Equal(t, "node:123", doc.ID)

	got, err := fromDoc(doc)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestNodeDocRoundTripNonLeaf(t *testing.T) {
	n := &merkletree.Node{Index: 7, Type: merkletree.NodeTypeNonLeaf}
	n.Left[0] = 0x01
	n.Right[0] = 0x02
	n.Hash[0] = 0x03

	doc := toDoc(n)
	got, err := fromDoc(doc)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestDataHashDocID(t *testing.T) {
	var h merkletree.Hash
	h[0] = 0xde
	h[1] = 0xad
	id := dataHashDocID(h)
	require.Equal(t, "datahash:dead000000000000000000000000000000000000000000000000000000000000", id)
}
