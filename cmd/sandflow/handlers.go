package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/BaSui01/sandflow/sandbox"
	"github.com/BaSui01/sandflow/types"

	"go.uber.org/zap"
)

// =============================================================================
// 🧰 HTTP Handlers
// =============================================================================

// maxRequestBody caps the execute request body. Scripts are small;
// anything beyond this is not a legitimate request.
const maxRequestBody = 1 << 20 // 1 MB

// Handlers bundles the HTTP endpoints over one engine instance.
type Handlers struct {
	engine         *sandbox.Engine
	defaultTimeout time.Duration
	logger         *zap.Logger
	ready          atomic.Bool
}

// NewHandlers creates the endpoint set. defaultTimeout applies to
// requests that leave timeout_seconds unset; zero keeps the engine's
// built-in default.
func NewHandlers(engine *sandbox.Engine, defaultTimeout time.Duration, logger *zap.Logger) *Handlers {
	h := &Handlers{
		engine:         engine,
		defaultTimeout: defaultTimeout,
		logger:         logger.With(zap.String("component", "handlers")),
	}
	h.ready.Store(true)
	return h
}

// HandleExecute runs one sandboxed script and writes the structured
// result. The caller identity comes from the authentication middleware;
// requests that never reach the interpreter still get a 200 with a
// structured error body, matching the engine's never-throw contract.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   map[string]string{"code": string(types.ErrInvalidRequest), "message": "use POST"},
		})
		return
	}

	identity, _ := types.UserID(r.Context())

	var req types.ExecutionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   map[string]string{"code": string(types.ErrInvalidRequest), "message": "malformed JSON body: " + err.Error()},
		})
		return
	}

	if req.TimeoutSeconds == 0 && h.defaultTimeout > 0 {
		req.TimeoutSeconds = int(h.defaultTimeout / time.Second)
	}

	result := h.engine.Execute(r.Context(), identity, &req)
	writeJSON(w, http.StatusOK, result)
}

// HandleCapabilities reports which sandbox modules are live.
func (h *Handlers) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	avail := h.engine.Availability()
	writeJSON(w, http.StatusOK, map[string]any{
		"available": avail.Available(),
		"missing":   avail.Missing(),
	})
}

// HandleHealth reports overall service health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "sandflow",
	})
}

// HandleHealthz is the minimal liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleReady reports readiness to accept executions.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// SetReady flips the readiness flag, used during shutdown draining.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HandleVersion reports the build metadata injected at link time.
func (h *Handlers) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
