// Package dag provides directed graph operations for pipeline dependencies.
// It supports cycle detection, deterministic topological ordering, execution
// layering and proposal-time edge checks.
package dag

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// CycleError is returned when a graph cannot be fully ordered.
// Remaining holds the ids that were never released, in node order.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("pipeline contains a cycle involving %d node(s): %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// Graph is a directed graph whose node iteration order is insertion order.
// Parallel edges are kept; each one contributes to in-degree.
type Graph struct {
	ids      []string
	index    map[string]int
	children map[string][]string // source -> targets (dependents)
	parents  map[string][]string // target -> sources (dependencies)
	edges    int
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:    make(map[string]int),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// FromSnapshot builds a graph from nodes and edges in their given order.
// Duplicate ids and edges naming unknown nodes are errors.
func FromSnapshot(nodes []core.PipelineNode, edges []core.PipelineEdge) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		if !g.AddNode(n.ID) {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode adds a node to the graph. It reports false if the id already exists.
func (g *Graph) AddNode(id string) bool {
	if _, exists := g.index[id]; exists {
		return false
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	return true
}

// AddEdge adds a directed edge from source to target (target depends on source).
func (g *Graph) AddEdge(source, target string) error {
	if _, exists := g.index[source]; !exists {
		return fmt.Errorf("source node %q does not exist", source)
	}
	if _, exists := g.index[target]; !exists {
		return fmt.Errorf("target node %q does not exist", target)
	}
	if source == target {
		return fmt.Errorf("self-loop detected: %s", source)
	}

	g.children[source] = append(g.children[source], target)
	g.parents[target] = append(g.parents[target], source)
	g.edges++
	return nil
}

// IDs returns node ids in insertion order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.ids)
}

// EdgeCount returns the number of edges in the graph, parallel edges included.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
// The path starts and ends with the same id.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.children[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.ids {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns ids so that every edge's source precedes its target.
//
// Kahn's algorithm with a FIFO queue seeded in insertion order; neighbours are
// released in edge insertion order. The result is fully determined by the
// order nodes and edges were added. A graph with a cycle yields *CycleError.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		inDegree[id] = len(g.parents[id])
	}

	queue := make([]string, 0, len(g.ids))
	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, childID := range g.children[id] {
			inDegree[childID]--
			if inDegree[childID] == 0 {
				queue = append(queue, childID)
			}
		}
	}

	if len(order) < len(g.ids) {
		return nil, &CycleError{Remaining: g.residual(inDegree)}
	}
	return order, nil
}

// GetExecutionLevels returns nodes grouped by execution level.
// Nodes at level N only depend on nodes at levels below N, so a level can run
// in parallel once the previous one completed. Level 0 contains nodes with no
// dependencies. Within a level, ids keep insertion order.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.ids))
	var current []string
	for _, id := range g.ids {
		inDegree[id] = len(g.parents[id])
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		released := make(map[string]bool)
		for _, id := range current {
			for _, childID := range g.children[id] {
				inDegree[childID]--
				if inDegree[childID] == 0 {
					released[childID] = true
				}
			}
		}

		var next []string
		for _, id := range g.ids {
			if released[id] {
				next = append(next, id)
			}
		}
		current = next
	}

	if placed < len(g.ids) {
		return nil, &CycleError{Remaining: g.residual(inDegree)}
	}
	return levels, nil
}

// residual returns ids whose in-degree never reached zero, in insertion order.
func (g *Graph) residual(inDegree map[string]int) []string {
	var out []string
	for _, id := range g.ids {
		if inDegree[id] > 0 {
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// Snapshot helpers
// =============================================================================

// Order computes the deterministic execution order of a snapshot.
func Order(nodes []core.PipelineNode, edges []core.PipelineEdge) ([]string, error) {
	g, err := FromSnapshot(nodes, edges)
	if err != nil {
		return nil, err
	}
	return g.TopologicalSort()
}

// Levels groups a snapshot's nodes into execution levels.
func Levels(nodes []core.PipelineNode, edges []core.PipelineEdge) ([][]string, error) {
	g, err := FromSnapshot(nodes, edges)
	if err != nil {
		return nil, err
	}
	return g.GetExecutionLevels()
}

// WouldCreateCycle reports whether adding source -> target to edges would
// close a cycle. Self-edges are always rejected. Node ids are taken from the
// edges themselves, so the check needs no node list.
func WouldCreateCycle(edges []core.PipelineEdge, source, target string) bool {
	if source == target {
		return true
	}

	adjacency := make(map[string][]string)
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	visited := make(map[string]bool)
	stack := []string{target}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == source {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, adjacency[id]...)
	}
	return false
}
