// Package loader reads pipeline graph snapshots from YAML or JSON files.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ParseError reports a malformed graph document.
type ParseError struct {
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid pipeline: " + e.Message
	}
	return fmt.Sprintf("invalid pipeline %s: %s", e.Path, e.Message)
}

// graphYAML mirrors core.Graph with a relaxed node type. Unknown fields are
// rejected.
type graphYAML struct {
	Nodes []nodeYAML          `yaml:"nodes"`
	Edges []core.PipelineEdge `yaml:"edges"`
}

type nodeYAML struct {
	ID       string   `yaml:"id"`
	NodeType nodeType `yaml:"nodeType"`
	Label    string   `yaml:"label"`
}

// nodeType accepts either {id, name} or a bare name such as "Data Source".
type nodeType core.NodeType

var catalogIDs = map[core.NodeKind]string{
	core.KindDataSource:  "1",
	core.KindTransformer: "2",
	core.KindModel:       "3",
	core.KindSink:        "4",
}

func (t *nodeType) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Name = value.Value
		if kind, ok := core.ParseNodeKind(value.Value); ok {
			t.Name = kind.DisplayName()
			t.ID = catalogIDs[kind]
		}
		return nil
	}

	var full core.NodeType
	if err := value.Decode(&full); err != nil {
		return err
	}
	*t = nodeType(full)
	return nil
}

// Load reads the graph stored at path.
func Load(path string) (core.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Graph{}, fmt.Errorf("failed to read pipeline: %w", err)
	}

	g, err := Parse(data)
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Path = path
	}
	return g, err
}

// Parse decodes a YAML or JSON graph document. Node and edge order is kept.
func Parse(data []byte) (core.Graph, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc graphYAML
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Graph{Nodes: []core.PipelineNode{}, Edges: []core.PipelineEdge{}}, nil
		}
		return core.Graph{}, &ParseError{Message: err.Error()}
	}

	g := core.Graph{
		Nodes: make([]core.PipelineNode, len(doc.Nodes)),
		Edges: doc.Edges,
	}
	if g.Edges == nil {
		g.Edges = []core.PipelineEdge{}
	}
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return core.Graph{}, &ParseError{Message: fmt.Sprintf("node %d has no id", i)}
		}
		g.Nodes[i] = core.PipelineNode{ID: n.ID, NodeType: core.NodeType(n.NodeType), Label: n.Label}
	}
	for i, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			return core.Graph{}, &ParseError{Message: fmt.Sprintf("edge %d needs a source and a target", i)}
		}
	}
	return g, nil
}

// Marshal encodes g as YAML.
func Marshal(g core.Graph) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}
