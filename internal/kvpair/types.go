package kvpair

import (
	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

// RequestContext carries the two tenant-identifying fields a call may
// supply: the header stamped by the external authorization sidecar, and a
// contract_id the caller put in the body. ContractID resolves header over
// body over the default tenant (SPEC_FULL.md §4.5, §9).
type RequestContext struct {
	HeaderContractHex string
	BodyContractID    []byte
}

type GetRootRequest struct {
	RequestContext
}

type GetRootResponse struct {
	Root merkletree.Hash
}

type SetRootRequest struct {
	RequestContext
	Hash merkletree.Hash
}

type SetRootResponse struct {
	Root merkletree.Hash
}

type GetLeafRequest struct {
	RequestContext
	Index        uint64
	ExpectedHash *merkletree.Hash
	ProofType    merkletree.ProofType
}

type GetLeafResponse struct {
	Node     *merkletree.Node
	Siblings []merkletree.Hash
}

type SetLeafRequest struct {
	RequestContext
	Index     uint64
	Data      [32]byte
	ProofType merkletree.ProofType
}

type SetLeafResponse struct {
	Node     *merkletree.Node
	Siblings []merkletree.Hash
	Root     merkletree.Hash
}

type GetNonLeafRequest struct {
	RequestContext
	Index        uint64
	ExpectedHash merkletree.Hash
}

type GetNonLeafResponse struct {
	Node *merkletree.Node
}

type SetNonLeafRequest struct {
	RequestContext
	Index uint64
	Left  merkletree.Hash
	Right merkletree.Hash
}

type SetNonLeafResponse struct {
	Node *merkletree.Node
}

type PoseidonHashRequest struct {
	RequestContext
	Data []byte
}

type PoseidonHashResponse struct {
	Hash merkletree.Hash
}

// DataHashMode selects DataHashRecord's behavior.
type DataHashMode uint8

const (
	ModeStore DataHashMode = iota
	ModeFetch
)

func (m DataHashMode) String() string {
	switch m {
	case ModeStore:
		return "ModeStore"
	case ModeFetch:
		return "ModeFetch"
	default:
		return "Unknown"
	}
}

// ParseDataHashMode parses the codec's symbolic mode name.
func ParseDataHashMode(s string) (DataHashMode, error) {
	switch s {
	case "ModeStore":
		return ModeStore, nil
	case "ModeFetch":
		return ModeFetch, nil
	default:
		return 0, apierr.New(apierr.InvalidEnum, "unknown mode: "+s)
	}
}

type DataHashRecordRequest struct {
	RequestContext
	Hash *merkletree.Hash
	Data []byte
	Mode DataHashMode
}

type DataHashRecordResponse struct {
	Hash merkletree.Hash
	Data []byte
}
