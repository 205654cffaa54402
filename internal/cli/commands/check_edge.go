package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/dag"
)

// NewCheckEdgeCommand creates the check-edge command.
func NewCheckEdgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-edge <graph-file> <source> <target>",
		Short: "Check whether adding an edge would create a cycle",
		Long: `Report whether connecting source to target keeps the pipeline acyclic.

The edge is rejected when target can already reach source, or when source
and target are the same node. The command exits non-zero when the edge is
rejected so it can guard scripted edits.`,
		Example: `  leappipe check-edge pipeline.yaml model sink
  leappipe check-edge pipeline.yaml sink source -o json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckEdge(cmd, args[0], args[1], args[2])
		},
	}
	return cmd
}

// checkEdgeJSON is the JSON shape of the check-edge command.
type checkEdgeJSON struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Allowed bool   `json:"allowed"`
}

func runCheckEdge(cmd *cobra.Command, path, source, target string) error {
	r := NewCommandContext(cmd).Renderer

	g, err := loadGraph(cmd, path)
	if err != nil {
		return err
	}

	allowed := !dag.WouldCreateCycle(g.Edges, source, target)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(checkEdgeJSON{Source: source, Target: target, Allowed: allowed}); err != nil {
			return err
		}
	default:
		if allowed {
			r.Success(fmt.Sprintf("Edge %s -> %s can be added", source, target))
		}
	}

	if !allowed {
		return fmt.Errorf("edge %s -> %s would create a cycle", source, target)
	}
	return nil
}
