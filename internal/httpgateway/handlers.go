package httpgateway

import (
	"encoding/json"
	"net/http"

	"github.com/omnisql/gateway/internal/auth"
	"github.com/omnisql/gateway/pkg/cache"
	"github.com/omnisql/gateway/pkg/engine"
	"github.com/omnisql/gateway/pkg/executor"
	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/joinengine"
	"github.com/omnisql/gateway/pkg/joinengine/memengine"
)

// queryRequest is the body of POST /v1/query.
type queryRequest struct {
	SQL      string `json:"sql"`
	Metadata struct {
		TraceID        string `json:"trace_id"`
		MaxStalenessMs int64  `json:"max_staleness_ms"`
	} `json:"metadata"`
}

func newJoinEngine() joinengine.Engine {
	return memengine.New()
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil {
		RespondError(w, http.StatusUnauthorized, "AUTH_INVALID", "missing authenticated security context")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, string(gatewayerr.InvalidSQL), "malformed request body")
		return
	}
	if req.SQL == "" {
		RespondError(w, http.StatusBadRequest, string(gatewayerr.InvalidSQL), "missing sql")
		return
	}

	fetchers, err := s.connectors.Fetchers(sc.TenantCfg)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, string(gatewayerr.ConfigInvalid), err.Error())
		return
	}

	eng := engine.New(executor.NewStaticFetchers(fetchers), cache.New(s.Redis), newJoinEngine)

	resp, err := eng.ExecuteQuery(r.Context(), sc, req.SQL, req.Metadata.MaxStalenessMs)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	Respond(w, http.StatusOK, resp)
}

// respondEngineError maps a gatewayerr-tagged failure to its wire-visible
// status code, adding Retry-After on a rate-limit exhaustion per the
// gateway's error status mapping.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	kind := gatewayerr.KindOf(err)
	status := gatewayerr.StatusCode(kind)

	if kind == gatewayerr.RateLimitExhausted {
		w.Header().Set("Retry-After", "5")
	}

	s.Logger.Warn("query failed", "kind", kind, "error", err)
	RespondError(w, status, string(kind), err.Error())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"

	if err := s.Redis.Ping(r.Context()).Err(); err != nil {
		checks["redis"] = "error"
		status = "degraded"
	} else {
		checks["redis"] = "ok"
	}

	if s.Registry.Count() == 0 {
		checks["tenants"] = "error"
		status = "degraded"
	} else {
		checks["tenants"] = "ok"
	}

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}
	Respond(w, httpStatus, map[string]any{"status": status, "checks": checks})
}
