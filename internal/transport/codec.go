package transport

import (
	"encoding/base64"
	"strconv"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

func parseIndex(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apierr.Wrap(apierr.InvalidIndex, "index must be a non-negative integer", err)
	}
	return v, nil
}

func decodeB64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "field is not valid base64", err)
	}
	return raw, nil
}

func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeHash(s string) (merkletree.Hash, error) {
	return merkletree.DecodeHashB64(s)
}

func decodeHashOptional(s string) (*merkletree.Hash, error) {
	if s == "" {
		return nil, nil
	}
	h, err := decodeHash(s)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func decodeLeafData(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := decodeB64(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, apierr.New(apierr.Internal, "data must be exactly 32 bytes")
	}
	copy(out[:], raw)
	return out, nil
}
