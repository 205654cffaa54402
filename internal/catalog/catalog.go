// Package catalog serves and fetches the node-type catalog used when
// authoring pipelines.
package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "leappipe-node-service"

// Default returns the built-in catalog.
func Default() []core.NodeType {
	return []core.NodeType{
		{ID: "1", Name: "Data Source"},
		{ID: "2", Name: "Transformer"},
		{ID: "3", Name: "Model"},
		{ID: "4", Name: "Sink"},
	}
}

// Handler serves GET /api/nodes and GET /health.
type Handler struct {
	types   []core.NodeType
	latency time.Duration
	logger  *slog.Logger
}

// NewHandler creates a handler serving types (the default catalog when nil)
// after the given simulated latency.
func NewHandler(types []core.NodeType, latency time.Duration, logger *slog.Logger) *Handler {
	if types == nil {
		types = Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{types: types, latency: latency, logger: logger}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/nodes", h.Nodes)
	r.Get("/health", h.Health)
}

// Nodes returns the catalog as JSON.
func (h *Handler) Nodes(w http.ResponseWriter, r *http.Request) {
	if h.latency > 0 {
		timer := time.NewTimer(h.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, h.logger, http.StatusOK, h.types)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}
