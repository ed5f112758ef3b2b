package merkletree

import (
	"github.com/kvpair-io/kvpair-server/internal/field"
	"github.com/kvpair-io/kvpair-server/internal/poseidon"
)

// Verify is the pure proof-verification function from §4.3: it recomputes
// the path from a leaf up to the root using the supplied sibling hashes and
// reports whether the result matches claimedRoot.
func Verify(leafIndex uint64, leafHash Hash, siblings []Hash, claimedRoot Hash) bool {
	if !IsLeafIndex(leafIndex) || len(siblings) != Height {
		return false
	}
	idx := leafIndex
	h := leafHash
	for d := Height - 1; d >= 0; d-- {
		sib := siblings[d]
		var left, right Hash
		if isLeftChild(idx) {
			left, right = h, sib
		} else {
			left, right = sib, h
		}
		le, err := field.FromBytes(left)
		if err != nil {
			return false
		}
		re, err := field.FromBytes(right)
		if err != nil {
			return false
		}
		h = field.ToBytes(poseidon.HashNode(le, re))
		idx = parent(idx)
	}
	return h == claimedRoot
}
