package output

import (
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// RunEvent is one JSON line of `leappipe run --json`.
type RunEvent struct {
	Event     string                 `json:"event"` // run_start, log, run_end
	RunID     string                 `json:"run_id,omitempty"`
	Nodes     []string               `json:"nodes,omitempty"`
	Log       *core.ExecutionLog     `json:"log,omitempty"`
	Status    core.RunStatus         `json:"status,omitempty"`
	Completed int                    `json:"completed,omitempty"`
	Duration  float64                `json:"duration_seconds,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Statuses  []core.NodeStatusEntry `json:"statuses,omitempty"`
}

// FormatLogTime formats a log timestamp the way every mode shows it.
func FormatLogTime(t time.Time) string {
	return t.Format("15:04:05")
}
