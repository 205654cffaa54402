package core

import (
	"context"
	"time"
)

// Store defines the interface for run history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations. An empty id in CreateRun asks the store to assign one.
	CreateRun(ctx context.Context, id string, nodeCount int, startedAt time.Time) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error

	// Log operations
	AppendLogs(ctx context.Context, runID string, logs []ExecutionLog) error
	GetRunLogs(ctx context.Context, runID string) ([]ExecutionLog, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// Run represents one recorded pipeline execution.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	NodeCount   int        `json:"nodeCount"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
