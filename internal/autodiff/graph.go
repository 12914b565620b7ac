// Package autodiff implements reverse-mode automatic differentiation.
//
// Operations performed on Variables during a forward pass are recorded into
// a Graph: an arena of Nodes appended in creation order, where each Node
// holds one Edge per differentiable input. Because a node can only reference
// nodes created strictly before it, walking the arena backwards is already a
// valid reverse topological order; Backward exploits this for an
// O(nodes + edges) linear pass with no explicit sort.
//
// A Graph is created fresh per forward pass and is single-use: Backward
// consumes it, releasing node storage and every tensor value the graph
// retained for its closures.
package autodiff

import (
	"sync/atomic"

	"github.com/floe-ml/floe/internal/tensor"
	"github.com/pkg/errors"
)

// GradFn transforms the gradient flowing out of a node into the gradient
// with respect to one specific input. The returned tensor must match the
// input's shape; a mismatch is a bug in the op that registered the edge.
type GradFn func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error)

// edge is a registration (predecessor node, gradient transform) recorded
// when a tracked Variable is consumed by an operation.
type edge struct {
	pred   *Node
	gradFn GradFn
}

// Node identifies a single differentiable computation in a Graph.
// Its id is the arena index, stable for the graph's lifetime.
type Node struct {
	graph *Graph
	id    int
	key   uint64 // nonzero for leaves with gradient identity (parameters, tracked inputs)
	shape tensor.Shape
	dtype tensor.DataType
	edges []edge
}

// Graph returns the graph scope that owns this node.
func (n *Node) Graph() *Graph {
	return n.graph
}

// Id returns the node's creation-order index within its graph.
func (n *Node) Id() int {
	return n.id
}

// Graph owns the nodes recorded during one forward pass.
//
// The graph also retains the tensor values handed to it for the duration of
// the pass (parameter clones, see Retain); these are released when Backward
// completes or the scope is dropped, restoring exclusive ownership to
// whoever shared them.
type Graph struct {
	nodes    []*Node
	retained []*tensor.RawTensor
	consumed bool
}

// NewGraph creates an empty graph scope for one forward/backward pass.
func NewGraph() *Graph {
	return &Graph{
		nodes: make([]*Node, 0, 64),
	}
}

// NumNodes returns the number of nodes recorded so far.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Consumed reports whether the graph has been consumed, either by
// Backward or by an explicit Drop.
func (g *Graph) Consumed() bool {
	return g.consumed
}

// Retain registers a shared tensor value to be released when the graph is
// consumed or dropped. Parameters use this so their storage becomes
// exclusively owned again once the pass is over.
func (g *Graph) Retain(t *tensor.RawTensor) {
	g.retained = append(g.retained, t)
}

// Drop releases everything the graph holds: retained values and node
// storage, including the closures edges captured. Safe to call more than
// once; called automatically at the end of Backward and available for
// early-exit paths that abandon a forward pass. A dropped graph is
// consumed: Backward on it returns the "already consumed" error.
func (g *Graph) Drop() {
	g.consumed = true
	for _, t := range g.retained {
		t.Release()
	}
	g.retained = nil
	for _, n := range g.nodes {
		n.edges = nil
	}
	g.nodes = nil
}

// nextKey is the process-wide source of gradient-lookup identities.
// Keys start at 1; zero marks a node without identity.
var nextKey atomic.Uint64

// NewKey allocates a fresh, process-unique gradient-lookup identity.
func NewKey() uint64 {
	return nextKey.Add(1)
}

// newNode appends a node to the arena.
func (g *Graph) newNode(key uint64, value *tensor.RawTensor, edges []edge) *Node {
	if g.consumed {
		panic("autodiff: graph already consumed, create a new Graph per forward pass")
	}
	n := &Node{
		graph: g,
		id:    len(g.nodes),
		key:   key,
		shape: value.Shape().Clone(),
		dtype: value.DType(),
		edges: edges,
	}
	g.nodes = append(g.nodes, n)
	return n
}

// Leaf creates a tracked leaf Variable whose gradient, if any reaches it,
// is recorded in the gradient map under the given key. The caller owns the
// choice of key; parameters pass their persistent identity so repeated uses
// across a pass (weight sharing) land in a single entry.
func (g *Graph) Leaf(value *tensor.RawTensor, key uint64) Variable {
	if key == 0 {
		panic("autodiff: leaf key must be nonzero")
	}
	return Variable{
		value: value,
		node:  g.newNode(key, value, nil),
	}
}

// Tracked lifts a plain value into a tracked leaf with a fresh identity,
// for callers that want gradients with respect to an input tensor.
// The assigned key is available as Variable.Key().
func (g *Graph) Tracked(value *tensor.RawTensor) Variable {
	return g.Leaf(value, NewKey())
}

// validateScope panics if the node belongs to a different graph than prior
// edges of the same builder. Mixing scopes would record an edge against an
// arena the backward walk never visits, silently losing gradients, so it is
// rejected loudly at registration time.
func validateScope(have *Graph, n *Node) *Graph {
	if n == nil {
		panic("autodiff: edge registered against nil node")
	}
	if have == nil {
		return n.graph
	}
	if have != n.graph {
		panic(errors.New("autodiff: variables from different graph scopes used in one operation"))
	}
	return have
}
