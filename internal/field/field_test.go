package field

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

func TestRoundTrip(t *testing.T) {
	var b Bytes
	b[0] = 0x2a
	b[1] = 0x01
	e, err := FromBytes(b)
	require.NoError(t, err)
	got := ToBytes(e)
	require.Equal(t, b, got)
}

func TestZero(t *testing.T) {
	var b Bytes
	e, err := FromBytes(b)
	require.NoError(t, err)
	require.True(t, e.IsZero())
}

func TestOutOfRange(t *testing.T) {
	var b Bytes
	for i := range b {
		b[i] = 0xff
	}
	_, err := FromBytes(b)
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.FieldOutOfRange, kind)
}
