// Package transport exposes the KVPair Request Handler over a gorilla/mux
// REST router implementing the mapping table in SPEC_FULL.md §6 literally,
// in the teacher's own transport idiom (every internal service in this
// codebase's lineage is wired through gorilla/mux).
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/kvpair"
	"github.com/kvpair-io/kvpair-server/internal/ratelimit"
)

// Server wires the KVPair service onto an HTTP router.
type Server struct {
	service   *kvpair.Service
	log       zerolog.Logger
	limiter   *ratelimit.Limiter
	writeRate int
}

// NewServer builds a transport Server. limiter may be nil, in which case
// write traffic is unthrottled; writeRate is the per-tenant budget in
// requests per minute when limiter is non-nil.
func NewServer(service *kvpair.Service, logger zerolog.Logger, limiter *ratelimit.Limiter, writeRatePerMinute int) *Server {
	return &Server{service: service, log: logger, limiter: limiter, writeRate: writeRatePerMinute}
}

// Router builds the gorilla/mux router matching SPEC_FULL.md §6's RPC/REST
// table plus the liveness probe expansion.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	r.HandleFunc("/v1/root", s.handleGetRoot).Methods(http.MethodGet)
	r.HandleFunc("/v1/root", s.rateLimited(s.handleSetRoot)).Methods(http.MethodPost)
	r.HandleFunc("/v1/leaves", s.handleGetLeaf).Methods(http.MethodGet)
	r.HandleFunc("/v1/leaves", s.rateLimited(s.handleSetLeaf)).Methods(http.MethodPost)
	r.HandleFunc("/v1/nonleaves", s.handleGetNonLeaf).Methods(http.MethodGet)
	r.HandleFunc("/v1/nonleaves", s.rateLimited(s.handleSetNonLeaf)).Methods(http.MethodPost)
	r.HandleFunc("/v1/poseidon", s.handlePoseidonHash).Methods(http.MethodPost)
	r.HandleFunc("/v1/datahashrecord", s.handleDataHashRecord).Methods(http.MethodPost)

	return r
}

// rateLimited wraps a write handler with the per-tenant request budget; the
// tenant key is the x-auth-contract-id header, falling back to "default" so
// unauthenticated traffic still shares a single bucket rather than bypassing
// the limiter entirely.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("x-auth-contract-id")
		if tenant == "" {
			tenant = "default"
		}
		if !s.limiter.Allow(r.Context(), ratelimit.TenantWriteKey(tenant), s.writeRate, time.Minute) {
			writeError(w, apierr.New(apierr.RateLimited, "write rate limit exceeded for tenant"))
			return
		}
		next(w, r)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestContext extracts the tenant-identifying fields from an incoming
// HTTP request: x-auth-contract-id out of the header (stamped by the
// external authorization sidecar) and contract_id out of a decoded body
// field.
func requestContext(r *http.Request, bodyContractID string) (kvpair.RequestContext, error) {
	bodyBytes, err := decodeB64Optional(bodyContractID)
	if err != nil {
		return kvpair.RequestContext{}, err
	}
	return kvpair.RequestContext{
		HeaderContractHex: r.Header.Get("x-auth-contract-id"),
		BodyContractID:    bodyBytes,
	}, nil
}

func decodeB64Optional(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return decodeB64(s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an apierr.Kind to an HTTP status and writes the error
// body, per §7's propagation rule ("retryable errors carry a flag so
// transports can choose to surface them distinctly").
func writeError(w http.ResponseWriter, err error) {
	kind, ok := apierr.Of(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: string(apierr.Internal), Message: err.Error()})
		return
	}
	status := http.StatusBadRequest
	retryable := false
	switch kind {
	case apierr.InvalidIndex, apierr.HashMismatch, apierr.FieldOutOfRange, apierr.InvalidEnum, apierr.InvalidContractID, apierr.TenantUnknown:
		status = http.StatusBadRequest
	case apierr.StorageConflict:
		status = http.StatusConflict
		retryable = true
	case apierr.StorageFatal:
		status = http.StatusServiceUnavailable
	case apierr.RateLimited:
		status = http.StatusTooManyRequests
		retryable = true
	case apierr.Internal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Kind: string(kind), Message: err.Error(), Retryable: retryable})
}

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
