// Package field converts between the wire representation of a field element
// (a 32-byte little-endian buffer) and github.com/consensys/gnark-crypto's
// BN254 scalar field type, which is canonically big-endian.
package field

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

// Element is the BN254 scalar field element type used throughout this
// service. It is gnark-crypto's fr.Element directly; no wrapping is needed
// beyond the byte-order conversion at the wire boundary.
type Element = fr.Element

// Bytes is the spec's 32-byte little-endian wire representation of an
// Element.
type Bytes = [32]byte

// FromBytes parses a little-endian 32-byte buffer into a field element,
// rejecting values at or above the BN254 scalar modulus. gnark-crypto's own
// SetBytes silently reduces mod p, so canonicality is checked here first.
func FromBytes(b Bytes) (Element, error) {
	be := reverse(b)
	asInt := new(big.Int).SetBytes(be[:])
	if asInt.Cmp(fr.Modulus()) >= 0 {
		return Element{}, apierr.New(apierr.FieldOutOfRange, "value is not a canonical BN254 scalar")
	}
	var e Element
	e.SetBytes(be[:])
	return e, nil
}

// ToBytes serializes a field element to its 32-byte little-endian wire form.
func ToBytes(e Element) Bytes {
	be := e.Bytes()
	return reverse(Bytes(be))
}

func reverse(b Bytes) Bytes {
	var out Bytes
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}
