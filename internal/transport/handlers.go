package transport

import (
	"encoding/json"
	"net/http"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/kvpair"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

// --- GET /v1/root ---

func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	rc, err := requestContext(r, r.URL.Query().Get("contract_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.service.GetRoot(r.Context(), kvpair.GetRootRequest{RequestContext: rc})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": encodeB64(resp.Root[:])})
}

// --- POST /v1/root ---

type setRootBody struct {
	ContractID string `json:"contract_id,omitempty"`
	Hash       string `json:"hash"`
}

func (s *Server) handleSetRoot(w http.ResponseWriter, r *http.Request) {
	var body setRootBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "invalid request body", err))
		return
	}
	rc, err := requestContext(r, body.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	hash, err := decodeHash(body.Hash)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.service.SetRoot(r.Context(), kvpair.SetRootRequest{RequestContext: rc, Hash: hash})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": encodeB64(resp.Root[:])})
}

// --- GET /v1/leaves ---

func (s *Server) handleGetLeaf(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rc, err := requestContext(r, q.Get("contract_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := parseIndex(q.Get("index"))
	if err != nil {
		writeError(w, err)
		return
	}
	expected, err := decodeHashOptional(q.Get("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	proofType, err := parseProofType(q.Get("proof_type"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.service.GetLeaf(r.Context(), kvpair.GetLeafRequest{
		RequestContext: rc, Index: index, ExpectedHash: expected, ProofType: proofType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeAndProofResponse(resp.Node, resp.Siblings))
}

// --- POST /v1/leaves ---

type setLeafBody struct {
	ContractID string `json:"contract_id,omitempty"`
	Index      uint64 `json:"index"`
	Hash       string `json:"hash,omitempty"`
	Data       string `json:"data"`
	ProofType  string `json:"proof_type,omitempty"`
}

func (s *Server) handleSetLeaf(w http.ResponseWriter, r *http.Request) {
	var body setLeafBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "invalid request body", err))
		return
	}
	rc, err := requestContext(r, body.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := decodeLeafData(body.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	proofType, err := parseProofType(body.ProofType)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.service.SetLeaf(r.Context(), kvpair.SetLeafRequest{
		RequestContext: rc, Index: body.Index, Data: data, ProofType: proofType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := nodeAndProofResponse(resp.Node, resp.Siblings)
	out["root"] = encodeB64(resp.Root[:])
	writeJSON(w, http.StatusOK, out)
}

// --- GET /v1/nonleaves ---

func (s *Server) handleGetNonLeaf(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rc, err := requestContext(r, q.Get("contract_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := parseIndex(q.Get("index"))
	if err != nil {
		writeError(w, err)
		return
	}
	expected, err := decodeHash(q.Get("hash"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.service.GetNonLeaf(r.Context(), kvpair.GetNonLeafRequest{
		RequestContext: rc, Index: index, ExpectedHash: expected,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Node.ToResponse())
}

// --- POST /v1/nonleaves ---

type setNonLeafBody struct {
	ContractID string `json:"contract_id,omitempty"`
	Index      uint64 `json:"index"`
	Hash       string `json:"hash,omitempty"`
	Left       string `json:"left"`
	Right      string `json:"right"`
}

func (s *Server) handleSetNonLeaf(w http.ResponseWriter, r *http.Request) {
	var body setNonLeafBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "invalid request body", err))
		return
	}
	rc, err := requestContext(r, body.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	left, err := decodeHash(body.Left)
	if err != nil {
		writeError(w, err)
		return
	}
	right, err := decodeHash(body.Right)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.service.SetNonLeaf(r.Context(), kvpair.SetNonLeafRequest{
		RequestContext: rc, Index: body.Index, Left: left, Right: right,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Node.ToResponse())
}

// --- POST /v1/poseidon ---

type poseidonBody struct {
	ContractID string `json:"contract_id,omitempty"`
	Data       string `json:"data"`
}

func (s *Server) handlePoseidonHash(w http.ResponseWriter, r *http.Request) {
	var body poseidonBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "invalid request body", err))
		return
	}
	rc, err := requestContext(r, body.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := decodeB64(body.Data)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.service.PoseidonHash(r.Context(), kvpair.PoseidonHashRequest{RequestContext: rc, Data: data})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": encodeB64(resp.Hash[:])})
}

// --- POST /v1/datahashrecord ---

type dataHashRecordBody struct {
	ContractID string `json:"contract_id,omitempty"`
	Hash       string `json:"hash,omitempty"`
	Data       string `json:"data,omitempty"`
	Mode       string `json:"mode"`
}

func (s *Server) handleDataHashRecord(w http.ResponseWriter, r *http.Request) {
	var body dataHashRecordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "invalid request body", err))
		return
	}
	rc, err := requestContext(r, body.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	mode, err := kvpair.ParseDataHashMode(body.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	hash, err := decodeHashOptional(body.Hash)
	if err != nil {
		writeError(w, err)
		return
	}
	var data []byte
	if body.Data != "" {
		data, err = decodeB64(body.Data)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	resp, err := s.service.DataHashRecord(r.Context(), kvpair.DataHashRecordRequest{
		RequestContext: rc, Hash: hash, Data: data, Mode: mode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": encodeB64(resp.Hash[:]),
		"data": encodeB64(resp.Data),
	})
}

// --- shared helpers ---

func nodeAndProofResponse(n *merkletree.Node, siblings []merkletree.Hash) map[string]interface{} {
	out := map[string]interface{}{"node": n.ToResponse()}
	if siblings != nil {
		out["proof"] = merkletree.ProofToResponse(siblings)
	}
	return out
}

func parseProofType(s string) (merkletree.ProofType, error) {
	if s == "" {
		return merkletree.ProofNone, nil
	}
	return merkletree.ParseProofType(s)
}
