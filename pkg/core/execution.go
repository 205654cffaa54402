package core

import (
	"context"
	"time"
)

// NodeStatus is the execution status of a single node.
type NodeStatus string

// Node status constants.
const (
	StatusIdle      NodeStatus = "idle"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusError     NodeStatus = "error"
)

// NodeStatusEntry pairs a node id with its status, preserving insertion order
// when a status map is exported.
type NodeStatusEntry struct {
	NodeID string     `json:"nodeId"`
	Status NodeStatus `json:"status"`
}

// PipelineLogName is the node name used for pipeline-level log entries.
const PipelineLogName = "Pipeline"

// ExecutionLog is a single append-only entry in the execution log stream.
// NodeID is empty for pipeline-level entries.
type ExecutionLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"nodeId"`
	NodeName  string    `json:"nodeName"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// ExecutionState is the observable state of a controller.
// Observers always receive copies.
type ExecutionState struct {
	IsExecuting    bool           `json:"isExecuting"`
	CurrentNode    string         `json:"currentNode,omitempty"`
	CompletedNodes []string       `json:"completedNodes"`
	Logs           []ExecutionLog `json:"logs"`
}

// Clone returns a deep copy of the state.
func (s ExecutionState) Clone() ExecutionState {
	out := ExecutionState{
		IsExecuting:    s.IsExecuting,
		CurrentNode:    s.CurrentNode,
		CompletedNodes: make([]string, len(s.CompletedNodes)),
		Logs:           make([]ExecutionLog, len(s.Logs)),
	}
	copy(out.CompletedNodes, s.CompletedNodes)
	copy(out.Logs, s.Logs)
	return out
}

// ValidationResult is the pure outcome of validating a graph.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// =============================================================================
// Work units
// =============================================================================

// Metric keys reported by the built-in work units.
const (
	MetricRecords  = "records"
	MetricSteps    = "steps"
	MetricAccuracy = "accuracy"
	MetricResults  = "results"
)

// DefaultCompletionMessage is logged when a work unit reports no message.
const DefaultCompletionMessage = "Processing completed"

// WorkResult is what a work unit reports on success.
// Message is logged verbatim; an empty message is logged as "Processing completed".
// Metrics are carried into run reports.
type WorkResult struct {
	Message string             `json:"message,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// WorkUnit performs the work of a single node.
// Process is the only suspension point of an execution; implementations
// should return promptly once ctx is done.
type WorkUnit interface {
	Process(ctx context.Context, node PipelineNode) (WorkResult, error)
}
