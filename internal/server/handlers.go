package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leappipe/internal/dag"
	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/internal/loader"
	"github.com/leapstack-labs/leappipe/internal/state"
	"github.com/leapstack-labs/leappipe/internal/validate"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

const maxBodyBytes = 1 << 20

// StateResponse is the body of state-returning endpoints.
type StateResponse struct {
	Phase    string                 `json:"phase"`
	State    core.ExecutionState    `json:"state"`
	Statuses []core.NodeStatusEntry `json:"statuses"`
}

// ExecuteResponse is the body of POST /api/pipeline/execute.
type ExecuteResponse struct {
	StateResponse
	Validation *core.ValidationResult `json:"validation,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// CheckEdgeRequest is the body of POST /api/edges/check.
type CheckEdgeRequest struct {
	Edges  []core.PipelineEdge `json:"edges"`
	Source string              `json:"source"`
	Target string              `json:"target"`
}

// RunResponse is the body of GET /api/runs/{id}.
type RunResponse struct {
	Run  *core.Run           `json:"run"`
	Logs []core.ExecutionLog `json:"logs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Validate checks a graph snapshot.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, validate.ValidateWithOptions(g, validate.Options{StrictCycles: s.strict}))
}

// Order returns a graph's execution order.
func (s *Server) Order(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}

	order, err := dag.Order(g.Nodes, g.Edges)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"order": order})
}

// CheckEdge reports whether a proposed edge keeps the graph acyclic.
func (s *Server) CheckEdge(w http.ResponseWriter, r *http.Request) {
	var req CheckEdgeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Source == "" || req.Target == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("source and target are required"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{
		"allowed": !dag.WouldCreateCycle(req.Edges, req.Source, req.Target),
	})
}

// Execute starts a run.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}

	err := s.controller.Execute(r.Context(), g)

	resp := ExecuteResponse{StateResponse: s.stateResponse()}
	status := http.StatusAccepted

	var (
		verr      *engine.ValidationError
		structErr *engine.StructuralError
	)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrAlreadyRunning):
		status = http.StatusConflict
		resp.Error = err.Error()
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		resp.Error = err.Error()
		resp.Validation = &verr.Result
	case errors.As(err, &structErr):
		status = http.StatusUnprocessableEntity
		resp.Error = err.Error()
	default:
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, status, resp)
}

// Stop asks the current run to stop at the next node boundary.
func (s *Server) Stop(w http.ResponseWriter, _ *http.Request) {
	s.controller.Stop()
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// Reset clears execution state.
func (s *Server) Reset(w http.ResponseWriter, _ *http.Request) {
	s.controller.Reset()
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// State returns the current execution state.
func (s *Server) State(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// ListRuns returns recent runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*core.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run and its logs.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	logs, err := s.store.GetRunLogs(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{Run: run, Logs: logs})
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) stateResponse() StateResponse {
	return StateResponse{
		Phase:    s.controller.Phase().String(),
		State:    s.controller.Snapshot(),
		Statuses: s.controller.Statuses(),
	}
}

// readGraph decodes a graph snapshot body. Both JSON and YAML are accepted.
func (s *Server) readGraph(w http.ResponseWriter, r *http.Request) (core.Graph, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return core.Graph{}, false
	}

	g, err := loader.Parse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return core.Graph{}, false
	}
	return g, true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("run history is disabled"))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
