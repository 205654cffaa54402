package server

import (
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// PipelineSignals is the signal payload patched on every controller change.
type PipelineSignals struct {
	Pipeline PipelineSignal `json:"pipeline"`
}

// PipelineSignal carries the observable controller state. Logs holds only
// entries not sent before; Reset tells the client to drop the logs it has.
type PipelineSignal struct {
	Phase    string                 `json:"phase"`
	State    core.ExecutionState    `json:"state"`
	Statuses []core.NodeStatusEntry `json:"statuses"`
	Logs     []core.ExecutionLog    `json:"logs"`
	Reset    bool                   `json:"reset"`
}

// Events is the long-lived SSE endpoint. The first event carries the full
// state; later events are sent on every controller ping.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	_ = engine.Watch(r.Context(), s.controller, func(u engine.Update) {
		if r.Context().Err() != nil {
			return
		}

		state := u.State
		// logs travel separately, incrementally
		state.Logs = nil

		signals := PipelineSignals{Pipeline: PipelineSignal{
			Phase:    u.Phase.String(),
			State:    state,
			Statuses: u.Statuses,
			Logs:     u.Logs,
			Reset:    u.Reset,
		}}
		if err := sse.MarshalAndPatchSignals(signals); err != nil {
			_ = sse.ConsoleError(err)
		}
	})
}
