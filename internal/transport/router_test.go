package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kvpair-io/kvpair-server/internal/contract"
	"github.com/kvpair-io/kvpair-server/internal/kvpair"
	"github.com/kvpair-io/kvpair-server/internal/lock"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
	"github.com/kvpair-io/kvpair-server/internal/store"
)

func newTestServer() *Server {
	mem := store.NewMemory()
	engine := merkletree.NewEngine(mem)
	gate := lock.NewGate()
	svc := kvpair.NewService(engine, mem, gate, zerolog.Nop(), contract.Default())
	return NewServer(svc, zerolog.Nop(), nil, 0)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRootEmpty(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/root", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	gotRoot, err := base64.StdEncoding.DecodeString(body["root"])
	require.NoError(t, err)
	want := merkletree.DefaultRoot()
	require.Equal(t, want[:], gotRoot)
}

func TestSetLeafThenGetLeafOverHTTP(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	var data [32]byte
	data[31] = 5
	b64Data := base64.StdEncoding.EncodeToString(data[:])

	index := merkletree.LeafCount - 1
	setBody := `{"index":` + strconv.Itoa(index) + `,"data":"` + b64Data + `","proof_type":"ProofV0"}`
	setReq := httptest.NewRequest(http.MethodPost, "/v1/leaves", strings.NewReader(setBody))
	setRec := httptest.NewRecorder()
	router.ServeHTTP(setRec, setReq)
	require.Equal(t, http.StatusOK, setRec.Code, setRec.Body.String())

	var setResp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(setRec.Body.Bytes(), &setResp))
	var proof struct {
		ProofType string   `json:"proof_type"`
		Siblings  []string `json:"siblings"`
	}
	require.NoError(t, json.Unmarshal(setResp["proof"], &proof))
	require.Equal(t, "ProofV0", proof.ProofType)
	require.Len(t, proof.Siblings, merkletree.Height)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/leaves?index="+strconv.Itoa(index), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetLeafInvalidIndexReturnsBadRequest(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/leaves?index=0", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
