// Package core defines the shared language of the leappipe system.
//
// This package contains:
//   - Graph snapshot entities (NodeType, PipelineNode, PipelineEdge, Graph)
//   - Execution entities (NodeStatus, ExecutionLog, ExecutionState, ValidationResult)
//   - Service interfaces (WorkUnit, Store)
//   - Run history records (Run, RunStatus)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
