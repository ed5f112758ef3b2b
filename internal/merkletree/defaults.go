package merkletree

import (
	"github.com/kvpair-io/kvpair-server/internal/field"
	"github.com/kvpair-io/kvpair-server/internal/poseidon"
)

// defaultHashes[d] is D[d]: the hash of a subtree of depth H-d whose leaves
// are all the zero field element. defaultHashes[Height] is D[H] = H_leaf(0).
// Computed once at process start and never touched again (§9 "Default
// nodes. Precompute once; never recompute on the hot path.").
var defaultHashes [Height + 1]Hash

func init() {
	var zero field.Element
	leaf := poseidon.HashLeaf(zero)
	defaultHashes[Height] = field.ToBytes(leaf)

	for d := Height - 1; d >= 0; d-- {
		childElem, err := field.FromBytes(defaultHashes[d+1])
		if err != nil {
			panic("merkletree: default hash table corrupt: " + err.Error())
		}
		h := poseidon.HashNode(childElem, childElem)
		defaultHashes[d] = field.ToBytes(h)
	}
}

// DefaultHash returns D[d], the hash of a missing node at depth d.
func DefaultHash(d int) Hash {
	return defaultHashes[d]
}

// DefaultRoot returns D[0], the root of a never-written tenant tree.
func DefaultRoot() Hash {
	return defaultHashes[0]
}
