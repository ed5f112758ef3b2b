// Package kvpair implements the Request Handler (§4.5): the KVPair service
// exposing GetRoot, SetRoot, GetLeaf, SetLeaf, GetNonLeaf, SetNonLeaf,
// PoseidonHash, and DataHashRecord over the Merkle Engine, with tenant
// resolution, input validation, and tenant-lock acquisition around every
// write.
package kvpair

import (
	"context"
	"encoding/hex"

	"github.com/rs/zerolog"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/contract"
	"github.com/kvpair-io/kvpair-server/internal/field"
	"github.com/kvpair-io/kvpair-server/internal/lock"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
	"github.com/kvpair-io/kvpair-server/internal/poseidon"
)

// Service is the KVPair RPC service implementation.
type Service struct {
	engine        *merkletree.Engine
	store         merkletree.NodeStore
	gate          lock.TenantLock
	log           zerolog.Logger
	defaultTenant contract.ID
}

// NewService builds a Service. defaultTenant is used when a request carries
// no ContractID at all.
func NewService(engine *merkletree.Engine, store merkletree.NodeStore, gate lock.TenantLock, logger zerolog.Logger, defaultTenant contract.ID) *Service {
	return &Service{engine: engine, store: store, gate: gate, log: logger, defaultTenant: defaultTenant}
}

// resolveTenant implements the header-over-body-over-default policy
// SPEC_FULL.md §4.5/§9 settles: x-auth-contract-id (already verified
// upstream) wins over a client-supplied contract_id, which wins over the
// configured default tenant.
func (s *Service) resolveTenant(rc RequestContext) (contract.ID, error) {
	if rc.HeaderContractHex != "" {
		raw, err := hex.DecodeString(rc.HeaderContractHex)
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidContractID, "x-auth-contract-id is not valid hex", err)
		}
		return contract.Parse(raw)
	}
	if len(rc.BodyContractID) > 0 {
		return contract.Parse(rc.BodyContractID)
	}
	if len(s.defaultTenant) > 0 {
		return s.defaultTenant, nil
	}
	return contract.Default(), nil
}

func (s *Service) GetRoot(ctx context.Context, req GetRootRequest) (*GetRootResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	root, err := s.engine.GetRoot(ctx, tenant.Collection())
	if err != nil {
		s.logErr(err, "GetRoot", tenant, 0)
		return nil, err
	}
	return &GetRootResponse{Root: root}, nil
}

func (s *Service) SetRoot(ctx context.Context, req SetRootRequest) (*SetRootResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	collection := tenant.Collection()

	unlock, err := s.gate.Lock(ctx, collection)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "failed to acquire tenant lock", err)
	}
	defer unlock(ctx)

	root, err := s.engine.SetRoot(ctx, collection, req.Hash)
	if err != nil {
		s.logErr(err, "SetRoot", tenant, 0)
		return nil, err
	}
	return &SetRootResponse{Root: root}, nil
}

func (s *Service) GetLeaf(ctx context.Context, req GetLeafRequest) (*GetLeafResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	node, siblings, err := s.engine.GetLeaf(ctx, tenant.Collection(), req.Index, req.ExpectedHash, req.ProofType)
	if err != nil {
		s.logErr(err, "GetLeaf", tenant, req.Index)
		return nil, err
	}
	return &GetLeafResponse{Node: node, Siblings: siblings}, nil
}

func (s *Service) SetLeaf(ctx context.Context, req SetLeafRequest) (*SetLeafResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	collection := tenant.Collection()

	unlock, err := s.gate.Lock(ctx, collection)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "failed to acquire tenant lock", err)
	}
	defer unlock(ctx)

	node, siblings, root, err := s.engine.SetLeaf(ctx, collection, req.Index, req.Data, req.ProofType)
	if err != nil {
		s.logErr(err, "SetLeaf", tenant, req.Index)
		return nil, err
	}
	return &SetLeafResponse{Node: node, Siblings: siblings, Root: root}, nil
}

func (s *Service) GetNonLeaf(ctx context.Context, req GetNonLeafRequest) (*GetNonLeafResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	node, err := s.engine.GetNonLeaf(ctx, tenant.Collection(), req.Index, req.ExpectedHash)
	if err != nil {
		s.logErr(err, "GetNonLeaf", tenant, req.Index)
		return nil, err
	}
	return &GetNonLeafResponse{Node: node}, nil
}

func (s *Service) SetNonLeaf(ctx context.Context, req SetNonLeafRequest) (*SetNonLeafResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	collection := tenant.Collection()

	unlock, err := s.gate.Lock(ctx, collection)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "failed to acquire tenant lock", err)
	}
	defer unlock(ctx)

	node, err := s.engine.SetNonLeaf(ctx, collection, req.Index, req.Left, req.Right)
	if err != nil {
		s.logErr(err, "SetNonLeaf", tenant, req.Index)
		return nil, err
	}
	return &SetNonLeafResponse{Node: node}, nil
}

// PoseidonHash is a pure utility op: it does not touch the tree or require a
// tenant lock.
func (s *Service) PoseidonHash(ctx context.Context, req PoseidonHashRequest) (*PoseidonHashResponse, error) {
	h, err := poseidon.Hash(req.Data)
	if err != nil {
		return nil, err
	}
	return &PoseidonHashResponse{Hash: field.ToBytes(h)}, nil
}

// DataHashRecord stores or fetches the side table mapping Hash to raw bytes
// (§3 DataHashRecord). ModeFetch on an absent record returns an empty data
// field rather than an error, per the Open Question resolution in
// SPEC_FULL.md §9.
func (s *Service) DataHashRecord(ctx context.Context, req DataHashRecordRequest) (*DataHashRecordResponse, error) {
	tenant, err := s.resolveTenant(req.RequestContext)
	if err != nil {
		return nil, err
	}
	collection := tenant.Collection()

	switch req.Mode {
	case ModeStore:
		h, err := poseidon.Hash(req.Data)
		if err != nil {
			return nil, err
		}
		hb := field.ToBytes(h)
		if err := s.store.StoreDataHash(ctx, collection, hb, req.Data); err != nil {
			s.logErr(err, "DataHashRecord/ModeStore", tenant, 0)
			return nil, err
		}
		return &DataHashRecordResponse{Hash: hb, Data: req.Data}, nil

	case ModeFetch:
		if req.Hash == nil {
			return nil, apierr.New(apierr.Internal, "ModeFetch requires a hash")
		}
		data, found, err := s.store.LoadDataHash(ctx, collection, *req.Hash)
		if err != nil {
			s.logErr(err, "DataHashRecord/ModeFetch", tenant, 0)
			return nil, err
		}
		if !found {
			return &DataHashRecordResponse{Hash: *req.Hash, Data: []byte{}}, nil
		}
		return &DataHashRecordResponse{Hash: *req.Hash, Data: data}, nil

	default:
		return nil, apierr.New(apierr.InvalidEnum, "unknown DataHashRecord mode")
	}
}

func (s *Service) logErr(err error, op string, tenant contract.ID, index uint64) {
	kind, _ := apierr.Of(err)
	s.log.Error().
		Str("op", op).
		Str("contract", tenant.Hex()).
		Uint64("index", index).
		Str("kind", string(kind)).
		Err(err).
		Msg("kvpair operation failed")
}
