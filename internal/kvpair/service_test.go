package kvpair

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/contract"
	"github.com/kvpair-io/kvpair-server/internal/lock"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
	"github.com/kvpair-io/kvpair-server/internal/store"
)

func newTestService() *Service {
	mem := store.NewMemory()
	engine := merkletree.NewEngine(mem)
	gate := lock.NewGate()
	return NewService(engine, mem, gate, zerolog.Nop(), contract.Default())
}

func firstLeafIndex() uint64 { return merkletree.LeafCount - 1 }

func TestServiceGetRootEmptyTenant(t *testing.T) {
	s := newTestService()
	resp, err := s.GetRoot(context.Background(), GetRootRequest{})
	require.NoError(t, err)
	require.Equal(t, merkletree.DefaultRoot(), resp.Root)
}

func TestServiceSetLeafThenGetLeaf(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	var data [32]byte
	data[31] = 9
	setResp, err := s.SetLeaf(ctx, SetLeafRequest{Index: firstLeafIndex(), Data: data, ProofType: merkletree.ProofV0})
	require.NoError(t, err)
	require.Len(t, setResp.Siblings, merkletree.Height)
	require.True(t, merkletree.Verify(firstLeafIndex(), setResp.Node.Hash, setResp.Siblings, setResp.Root))

	getResp, err := s.GetLeaf(ctx, GetLeafRequest{Index: firstLeafIndex()})
	require.NoError(t, err)
	require.Equal(t, setResp.Node.Hash, getResp.Node.Hash)
}

func TestServiceTenantHeaderPreferredOverBody(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	var data [32]byte
	data[31] = 1
	_, err := s.SetLeaf(ctx, SetLeafRequest{
		RequestContext: RequestContext{HeaderContractHex: "aa", BodyContractID: []byte{0xbb}},
		Index:          firstLeafIndex(),
		Data:           data,
	})
	require.NoError(t, err)

	rootFromHeaderTenant, err := s.GetRoot(ctx, GetRootRequest{RequestContext: RequestContext{HeaderContractHex: "aa"}})
	require.NoError(t, err)
	require.NotEqual(t, merkletree.DefaultRoot(), rootFromHeaderTenant.Root)

	rootFromBodyTenant, err := s.GetRoot(ctx, GetRootRequest{RequestContext: RequestContext{BodyContractID: []byte{0xbb}}})
	require.NoError(t, err)
	require.Equal(t, merkletree.DefaultRoot(), rootFromBodyTenant.Root, "header tenant and body tenant must be distinct trees")
}

func TestServiceDataHashRecordStoreThenFetch(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	payload := make([]byte, 32)
	copy(payload, []byte("arbitrary opaque payload"))
	storeResp, err := s.DataHashRecord(ctx, DataHashRecordRequest{Data: payload, Mode: ModeStore})
	require.NoError(t, err)

	fetchResp, err := s.DataHashRecord(ctx, DataHashRecordRequest{Hash: &storeResp.Hash, Mode: ModeFetch})
	require.NoError(t, err)
	require.Equal(t, storeResp.Data, fetchResp.Data)
}

func TestServiceDataHashRecordFetchMissingReturnsEmpty(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	var h merkletree.Hash
	h[0] = 0x42
	resp, err := s.DataHashRecord(ctx, DataHashRecordRequest{Hash: &h, Mode: ModeFetch})
	require.NoError(t, err)
	require.Empty(t, resp.Data)
}

func TestServiceGetLeafInvalidIndex(t *testing.T) {
	s := newTestService()
	_, err := s.GetLeaf(context.Background(), GetLeafRequest{Index: 0})
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidIndex, kind)
}

func TestServiceGetRootMalformedHeaderIsInvalidContractID(t *testing.T) {
	s := newTestService()
	_, err := s.GetRoot(context.Background(), GetRootRequest{
		RequestContext: RequestContext{HeaderContractHex: "not-hex"},
	})
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidContractID, kind)
}

func TestServiceGetRootOversizedBodyContractIDIsInvalidContractID(t *testing.T) {
	s := newTestService()
	_, err := s.GetRoot(context.Background(), GetRootRequest{
		RequestContext: RequestContext{BodyContractID: make([]byte, contract.MaxLen+1)},
	})
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidContractID, kind)
}
