package testutil

import (
	"strconv"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

var kindTypeIDs = map[core.NodeKind]string{
	core.KindDataSource:  "1",
	core.KindTransformer: "2",
	core.KindModel:       "3",
	core.KindSink:        "4",
}

// Node builds a node whose label equals its id.
func Node(id string, kind core.NodeKind) core.PipelineNode {
	return core.PipelineNode{
		ID:       id,
		NodeType: core.NodeType{ID: kindTypeIDs[kind], Name: kind.DisplayName()},
		Label:    id,
	}
}

// Edge builds source -> target.
func Edge(source, target string) core.PipelineEdge {
	return core.PipelineEdge{Source: source, Target: target}
}

// Chain returns A(Data Source) -> B(Transformer) -> C(Sink).
func Chain() core.Graph {
	return core.Graph{
		Nodes: []core.PipelineNode{
			Node("A", core.KindDataSource),
			Node("B", core.KindTransformer),
			Node("C", core.KindSink),
		},
		Edges: []core.PipelineEdge{Edge("A", "B"), Edge("B", "C")},
	}
}

// Linear returns n nodes n0 -> n1 -> ... with a Data Source head and a Sink tail.
func Linear(n int) core.Graph {
	var g core.Graph
	for i := 0; i < n; i++ {
		kind := core.KindTransformer
		switch i {
		case 0:
			kind = core.KindDataSource
		case n - 1:
			kind = core.KindSink
		}
		id := "n" + strconv.Itoa(i)
		g.Nodes = append(g.Nodes, Node(id, kind))
		if i > 0 {
			g.Edges = append(g.Edges, Edge("n"+strconv.Itoa(i-1), id))
		}
	}
	return g
}
