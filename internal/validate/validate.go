// Package validate checks the structural preconditions of a pipeline graph.
//
// Validation is pure: it never mutates the graph and never touches execution
// state. Errors block execution; warnings are informational.
package validate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leappipe/internal/dag"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Messages emitted by the validator.
const (
	MsgEmpty        = "Pipeline is empty. Add some nodes to get started."
	MsgNoDataSource = "Pipeline must have at least one Data Source node."
	MsgNoSink       = "Pipeline should have at least one Sink node."
)

// Options tunes validation.
type Options struct {
	// StrictCycles adds a blocking error when the whole graph contains a cycle.
	// Without it cycles are left to the scheduler.
	StrictCycles bool
}

// Error is the blocking outcome of a failed validation.
type Error struct {
	Result core.ValidationResult
}

func (e *Error) Error() string {
	return strings.Join(e.Result.Errors, ", ")
}

// Validate checks g with default options.
func Validate(g core.Graph) core.ValidationResult {
	return ValidateWithOptions(g, Options{})
}

// ValidateWithOptions checks g. Rules run in a fixed order and an empty
// graph short-circuits with a single error.
func ValidateWithOptions(g core.Graph, opts Options) core.ValidationResult {
	result := core.ValidationResult{Errors: []string{}, Warnings: []string{}}

	if len(g.Nodes) == 0 {
		result.Errors = append(result.Errors, MsgEmpty)
		return result
	}

	hasSource, hasSink := false, false
	for _, n := range g.Nodes {
		hasSource = hasSource || n.NodeType.Is(core.KindDataSource)
		hasSink = hasSink || n.NodeType.Is(core.KindSink)
	}
	if !hasSource {
		result.Errors = append(result.Errors, MsgNoDataSource)
	}

	structural := structuralErrors(g)
	result.Errors = append(result.Errors, structural...)

	if opts.StrictCycles && len(structural) == 0 {
		if msg := cycleError(g); msg != "" {
			result.Errors = append(result.Errors, msg)
		}
	}

	if !hasSink {
		result.Warnings = append(result.Warnings, MsgNoSink)
	}
	if len(g.Nodes) > 1 {
		if n := unconnected(g); n > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d node(s) are not connected to the pipeline.", n))
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// Check validates g and returns *Error when the result is not valid.
func Check(g core.Graph, opts Options) (core.ValidationResult, error) {
	result := ValidateWithOptions(g, opts)
	if !result.IsValid {
		return result, &Error{Result: result}
	}
	return result, nil
}

// structuralErrors reports duplicate ids and edges naming unknown nodes.
func structuralErrors(g core.Graph) []string {
	var errs []string

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("Duplicate node id %q.", n.ID))
			continue
		}
		seen[n.ID] = true
	}

	for _, e := range g.Edges {
		for _, id := range []string{e.Source, e.Target} {
			if !seen[id] {
				errs = append(errs, fmt.Sprintf("Edge %s -> %s references unknown node %s.", e.Source, e.Target, id))
				break
			}
		}
	}
	return errs
}

func cycleError(g core.Graph) string {
	graph, err := dag.FromSnapshot(g.Nodes, g.Edges)
	if err != nil {
		return ""
	}
	if hasCycle, path := graph.HasCycle(); hasCycle {
		return fmt.Sprintf("Pipeline contains a cycle: %s.", strings.Join(path, " -> "))
	}
	return ""
}

// unconnected counts nodes that appear in no edge.
func unconnected(g core.Graph) int {
	touched := make(map[string]bool, len(g.Edges)*2)
	for _, e := range g.Edges {
		touched[e.Source] = true
		touched[e.Target] = true
	}

	count := 0
	for _, n := range g.Nodes {
		if !touched[n.ID] {
			count++
		}
	}
	return count
}
