// Package api exposes the deployment's status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/selfhost-sh/convexup/internal/core/topology"
	"github.com/selfhost-sh/convexup/internal/shell/orchestrator"
)

// =============================================================================
// Handler
// =============================================================================

// StatusSource reports the runtime state of the deployment's services.
// The orchestrator satisfies it.
type StatusSource interface {
	Status(ctx context.Context, topo topology.Topology) ([]orchestrator.ServiceStatus, error)
}

// Handler serves the status endpoints.
type Handler struct {
	source StatusSource
	topo   topology.Topology
	logger *slog.Logger
}

// NewHandler creates a status handler over the given topology.
func NewHandler(source StatusSource, topo topology.Topology, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		source: source,
		topo:   topo,
		logger: logger.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)

	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Services []orchestrator.ServiceStatus `json:"services"`
}

// ErrorResponse is the body of error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.source.Status(r.Context(), h.topo)
	if err != nil {
		h.logger.Error("failed to inspect services", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "failed to inspect services", "runtime_error")
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Services: statuses})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
