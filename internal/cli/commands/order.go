package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/dag"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// OrderOptions holds options for the order command.
type OrderOptions struct {
	Levels bool
}

// NewOrderCommand creates the order command.
func NewOrderCommand() *cobra.Command {
	opts := &OrderOptions{}

	cmd := &cobra.Command{
		Use:   "order <graph-file>",
		Short: "Show the execution order of a pipeline",
		Long: `Compute the order in which a pipeline's nodes run.

Nodes are ordered so that every edge's source runs before its target. Among
nodes that are ready at the same time, the order in the graph file wins.
With --levels, nodes are grouped into layers that can run in parallel.

Cyclic graphs have no order; the nodes left on the cycle are reported.`,
		Example: `  # Show the order
  leappipe order pipeline.yaml

  # Show parallel layers
  leappipe order pipeline.yaml --levels

  # Output as JSON
  leappipe order pipeline.yaml -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Levels, "levels", false, "Group nodes into parallel execution levels")

	return cmd
}

// orderJSON is the JSON shape of the order command.
type orderJSON struct {
	Order        []string            `json:"order,omitempty"`
	Levels       [][]string          `json:"levels,omitempty"`
	Dependencies map[string][]string `json:"dependencies"`
}

func runOrder(cmd *cobra.Command, path string, opts *OrderOptions) error {
	r := NewCommandContext(cmd).Renderer

	g, err := loadGraph(cmd, path)
	if err != nil {
		return err
	}

	dg, err := dag.FromSnapshot(g.Nodes, g.Edges)
	if err != nil {
		return fmt.Errorf("failed to order pipeline: %w", err)
	}

	var levels [][]string
	if opts.Levels {
		levels, err = dg.GetExecutionLevels()
	} else {
		var order []string
		order, err = dg.TopologicalSort()
		for _, id := range order {
			levels = append(levels, []string{id})
		}
	}
	if err != nil {
		return fmt.Errorf("failed to order pipeline: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		deps := make(map[string][]string, dg.NodeCount())
		for _, id := range dg.IDs() {
			deps[id] = append([]string{}, dg.GetParents(id)...)
		}
		if opts.Levels {
			return r.JSON(orderJSON{Levels: levels, Dependencies: deps})
		}
		return r.JSON(orderJSON{Order: flatten(levels), Dependencies: deps})
	case output.ModeMarkdown:
		orderMarkdown(r, g, dg, levels, opts.Levels)
	default:
		orderText(r, g, dg, levels, opts.Levels)
	}
	return nil
}

func orderText(r *output.Renderer, g core.Graph, dg *dag.Graph, levels [][]string, grouped bool) {
	styles := r.Styles()
	nodes := g.NodeIndex()

	r.Header(1, "Execution Order")
	step := 0
	for i, level := range levels {
		if grouped {
			r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		}
		for _, id := range level {
			step++
			n := nodes[id]
			line := fmt.Sprintf("  %2d. %s %s %s", step,
				styles.NodeID.Render(id),
				n.DisplayLabel(),
				styles.Muted.Render("["+n.NodeType.Name+"]"))
			if parents := dg.GetParents(id); len(parents) > 0 {
				line += styles.Muted.Render(" after " + strings.Join(parents, ", "))
			}
			r.Println(line)
		}
	}
	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d edges", dg.NodeCount(), dg.EdgeCount())))
}

func orderMarkdown(r *output.Renderer, g core.Graph, dg *dag.Graph, levels [][]string, grouped bool) {
	nodes := g.NodeIndex()

	r.Println(output.FormatHeader(1, "Execution Order"))
	r.Println("")
	step := 0
	for i, level := range levels {
		if grouped {
			name := fmt.Sprintf("Level %d", i)
			if i == 0 {
				name = "Level 0 (Sources)"
			}
			r.Println(output.FormatHeader(2, name))
		}
		for _, id := range level {
			step++
			n := nodes[id]
			line := fmt.Sprintf("%d. `%s` %s (%s)", step, id, n.DisplayLabel(), n.NodeType.Name)
			if parents := dg.GetParents(id); len(parents) > 0 {
				line += " after `" + strings.Join(parents, "`, `") + "`"
			}
			r.Println(line)
		}
		if grouped {
			r.Println("")
		}
	}
	r.Println("")
	r.Printf("_%d nodes, %d edges_\n", dg.NodeCount(), dg.EdgeCount())
}

func flatten(levels [][]string) []string {
	var out []string
	for _, level := range levels {
		out = append(out, level...)
	}
	return out
}
