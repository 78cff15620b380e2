// Package pipeline implements the Pipeline value object (C7): a DAG of
// build-stage nodes, with head detection, reverse-edge slicing, and
// flat serialization, mirroring the "graph of dicts" shape the original
// project.py built with networkx.
package pipeline

import (
	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
)

// Node is one stage instance in the graph, fully qualified by its
// build-target name (e.g. "images.transform-1").
type Node struct {
	Name    string
	Parents []string
	Config  config.BuildStage
}

// Pipeline is an immutable-shape DAG: nodes keyed by name, with the
// out-degree of every node implied by how many other nodes list it as
// a parent.
type Pipeline struct {
	nodes  map[string]Node
	order  []string // insertion order, for deterministic serialization
	outdeg map[string]int
}

// New builds a Pipeline from nodes, computing out-degrees from the
// parent lists. It does not itself require a unique head — use Head()
// or Validate() for that.
func New(nodes []Node) *Pipeline {
	p := &Pipeline{
		nodes:  map[string]Node{},
		outdeg: map[string]int{},
	}
	for _, n := range nodes {
		p.nodes[n.Name] = n
		p.order = append(p.order, n.Name)
		if _, ok := p.outdeg[n.Name]; !ok {
			p.outdeg[n.Name] = 0
		}
	}
	for _, n := range nodes {
		for _, parent := range n.Parents {
			p.outdeg[parent]++
		}
	}
	return p
}

// Len reports the number of nodes.
func (p *Pipeline) Len() int { return len(p.nodes) }

// Node looks up a node by name.
func (p *Pipeline) Node(name string) (Node, bool) {
	n, ok := p.nodes[name]
	return n, ok
}

// OutDegree returns how many other nodes list name as a parent.
func (p *Pipeline) OutDegree(name string) int { return p.outdeg[name] }

// Nodes returns every node, in insertion order.
func (p *Pipeline) Nodes() []Node {
	out := make([]Node, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.nodes[name])
	}
	return out
}

// Head returns the unique out-degree-0 node, failing with
// MissingPipelineHeadError/MultiplePipelineHeadsError otherwise.
func (p *Pipeline) Head() (Node, error) {
	if len(p.nodes) == 0 {
		return Node{}, cerrors.EmptyPipeline()
	}
	var heads []string
	for name := range p.nodes {
		if p.outdeg[name] == 0 {
			heads = append(heads, name)
		}
	}
	switch len(heads) {
	case 0:
		return Node{}, cerrors.MissingPipelineHead()
	case 1:
		return p.nodes[heads[0]], nil
	default:
		return Node{}, cerrors.MultiplePipelineHeads(heads)
	}
}

// Validate checks that the pipeline has exactly one head, returning
// that error (if any) without the node.
func (p *Pipeline) Validate() error {
	_, err := p.Head()
	return err
}

// Slice returns the induced subgraph reachable from target by walking
// reverse edges (parents of parents, …): target plus every ancestor.
// target becomes the unique head of the returned Pipeline.
func (p *Pipeline) Slice(target string) (*Pipeline, error) {
	if _, ok := p.nodes[target]; !ok {
		return nil, cerrors.UnknownStage(target)
	}

	visited := map[string]bool{}
	var collected []Node
	stack := []string{target}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[name] {
			continue
		}
		visited[name] = true
		n, ok := p.nodes[name]
		if !ok {
			continue
		}
		collected = append(collected, n)
		for _, parent := range n.Parents {
			if !visited[parent] {
				stack = append(stack, parent)
			}
		}
	}

	// Preserve original relative order among collected nodes rather
	// than the stack-pop order, so serialization stays deterministic.
	byName := map[string]Node{}
	for _, n := range collected {
		byName[n.Name] = n
	}
	ordered := make([]Node, 0, len(collected))
	for _, name := range p.order {
		if n, ok := byName[name]; ok {
			ordered = append(ordered, n)
		}
	}

	sliced := New(ordered)
	if err := sliced.Validate(); err != nil {
		return nil, err
	}
	return sliced, nil
}

// SerializedNode is the flat, re-parseable wire shape of one node.
type SerializedNode struct {
	Name    string            `yaml:"name"`
	Parents []string          `yaml:"parents,omitempty"`
	Config  config.BuildStage `yaml:"config"`
}

// Serialize flattens the pipeline to its wire form, in insertion order.
func (p *Pipeline) Serialize() []SerializedNode {
	out := make([]SerializedNode, 0, len(p.order))
	for _, name := range p.order {
		n := p.nodes[name]
		out = append(out, SerializedNode{Name: n.Name, Parents: n.Parents, Config: n.Config})
	}
	return out
}

// Deserialize rebuilds a Pipeline from its wire form. Parent order
// does not need to precede the child — serialization stores parents
// explicitly by name, so any ordering re-parses correctly.
func Deserialize(serialized []SerializedNode) *Pipeline {
	nodes := make([]Node, 0, len(serialized))
	for _, s := range serialized {
		nodes = append(nodes, Node{Name: s.Name, Parents: s.Parents, Config: s.Config})
	}
	return New(nodes)
}
