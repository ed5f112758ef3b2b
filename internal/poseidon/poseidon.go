// Package poseidon wraps gnark-crypto's BN254 Poseidon2 Merkle–Damgård hasher for the two
// fixed-arity hashes the tree needs (one element for a leaf, two for a
// non-leaf node) plus a variable-arity hash for the PoseidonHash RPC.
package poseidon

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/field"
)

// HashLeaf is H_leaf(data) = Poseidon(data), the single-element domain.
func HashLeaf(data field.Element) field.Element {
	return hashElements(data)
}

// HashNode is H_node(left, right) = Poseidon(left, right), the two-element
// domain. Arity alone separates it from HashLeaf; no extra domain tag is
// absorbed.
func HashNode(left, right field.Element) field.Element {
	return hashElements(left, right)
}

// Hash implements the general-purpose PoseidonHash operation: data must be a
// non-empty, 32-byte-aligned sequence of field elements, each parsed with the
// same little-endian wire rule as the rest of the service.
func Hash(data []byte) (field.Element, error) {
	if len(data) == 0 || len(data)%32 != 0 {
		return field.Element{}, apierr.New(apierr.Internal, "poseidon input must be a non-zero multiple of 32 bytes")
	}
	n := len(data) / 32
	elems := make([]field.Element, n)
	for i := 0; i < n; i++ {
		var b field.Bytes
		copy(b[:], data[i*32:(i+1)*32])
		e, err := field.FromBytes(b)
		if err != nil {
			return field.Element{}, err
		}
		elems[i] = e
	}
	return hashElements(elems...), nil
}

func hashElements(elems ...field.Element) field.Element {
	h := poseidon2.NewMerkleDamgardHasher()
	for _, e := range elems {
		b := e.Bytes()
		h.Write(b[:])
	}
	sum := h.Sum(nil)
	var out field.Element
	out.SetBytes(sum)
	return out
}
