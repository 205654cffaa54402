package core

import "strings"

// =============================================================================
// Node kinds
// =============================================================================

// NodeKind is the closed enumeration of node types the engine understands.
type NodeKind string

// Node kinds.
const (
	KindDataSource  NodeKind = "DataSource"
	KindTransformer NodeKind = "Transformer"
	KindModel       NodeKind = "Model"
	KindSink        NodeKind = "Sink"
)

// AllKinds returns every node kind in catalog order.
func AllKinds() []NodeKind {
	return []NodeKind{KindDataSource, KindTransformer, KindModel, KindSink}
}

// DisplayName returns the catalog spelling of the kind ("Data Source", ...).
func (k NodeKind) DisplayName() string {
	if k == KindDataSource {
		return "Data Source"
	}
	return string(k)
}

// ParseNodeKind resolves a catalog name to a NodeKind.
// Both the display form ("Data Source") and identifier forms
// ("DataSource", "data-source", "data_source") are accepted, case-insensitively.
func ParseNodeKind(name string) (NodeKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)

	for _, k := range AllKinds() {
		if strings.ToLower(string(k)) == normalized {
			return k, true
		}
	}
	return "", false
}

// =============================================================================
// Graph snapshot
// =============================================================================

// NodeType is a catalog entry embedded in a node.
type NodeType struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Kind resolves the type's name. ok is false for names outside the enumeration.
func (t NodeType) Kind() (NodeKind, bool) {
	return ParseNodeKind(t.Name)
}

// Is reports whether the type's name resolves to kind.
func (t NodeType) Is(kind NodeKind) bool {
	k, ok := t.Kind()
	return ok && k == kind
}

// PipelineNode is a unit of work in the graph. Identity is ID.
type PipelineNode struct {
	ID       string   `json:"id" yaml:"id"`
	NodeType NodeType `json:"nodeType" yaml:"nodeType"`
	Label    string   `json:"label" yaml:"label"`
}

// DisplayLabel returns the label, or "Unnamed Node" when it is blank.
func (n PipelineNode) DisplayLabel() string {
	if strings.TrimSpace(n.Label) == "" {
		return "Unnamed Node"
	}
	return n.Label
}

// PipelineEdge is a directed dependency: Target depends on Source.
type PipelineEdge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Graph is an immutable snapshot of nodes and edges supplied for one
// validation or execution call. Slice order is significant: it is the
// tie-break order used by the scheduler.
type Graph struct {
	Nodes []PipelineNode `json:"nodes" yaml:"nodes"`
	Edges []PipelineEdge `json:"edges" yaml:"edges"`
}

// NodeIDs returns node ids in snapshot order.
func (g Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node returns the first node with the given id.
func (g Graph) Node(id string) (PipelineNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return PipelineNode{}, false
}

// NodeIndex maps node ids to nodes. Later duplicates are ignored.
func (g Graph) NodeIndex() map[string]PipelineNode {
	index := make(map[string]PipelineNode, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, exists := index[n.ID]; !exists {
			index[n.ID] = n
		}
	}
	return index
}
