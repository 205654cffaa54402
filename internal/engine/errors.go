package engine

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leappipe/internal/validate"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ErrAlreadyRunning is returned by Execute while a run is in flight.
var ErrAlreadyRunning = errors.New("pipeline is already executing")

// ValidationError is returned by Execute when the graph fails validation.
// The run never starts.
type ValidationError struct {
	Result core.ValidationResult
	Err    *validate.Error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StructuralError is returned by Execute when no execution order exists,
// typically because the graph has a cycle. The run never starts.
type StructuralError struct {
	Err error
}

func (e *StructuralError) Error() string {
	return "structural error: " + e.Err.Error()
}

func (e *StructuralError) Unwrap() error { return e.Err }

// NodeError reports the failure of a single node's work unit.
// Recovered panics are reported as NodeError too.
type NodeError struct {
	NodeID string
	Label  string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.Label, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking work unit.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("work unit panicked: %v", e.Value)
}
