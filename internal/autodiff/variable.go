package autodiff

import (
	"github.com/floe-ml/floe/internal/tensor"
)

// Variable is a tensor value plus optional differentiation provenance.
//
// A Variable produced by a differentiable operation references the Node that
// recorded it; a leaf (input data, or any value under inference) has no node
// and costs nothing in graph bookkeeping.
type Variable struct {
	value *tensor.RawTensor
	node  *Node
}

// FromTensor lifts a plain value into a leaf Variable with no provenance.
func FromTensor(value *tensor.RawTensor) Variable {
	return Variable{value: value}
}

// Value returns the materialized forward value.
func (v Variable) Value() *tensor.RawTensor {
	return v.value
}

// Node returns the graph node backing this variable, or nil for leaves.
func (v Variable) Node() *Node {
	return v.node
}

// Tracked reports whether the variable carries differentiation provenance.
func (v Variable) Tracked() bool {
	return v.node != nil
}

// Key returns the gradient-lookup identity for tracked leaves, 0 otherwise.
func (v Variable) Key() uint64 {
	if v.node == nil {
		return 0
	}
	return v.node.key
}

// Shape returns the shape of the underlying value.
func (v Variable) Shape() tensor.Shape {
	return v.value.Shape()
}

// DType returns the dtype of the underlying value.
func (v Variable) DType() tensor.DataType {
	return v.value.DType()
}

// Backward computes gradients of this (scalar) variable with respect to
// every tracked leaf that contributed to it. On a variable without
// provenance it is a no-op returning an empty map: nothing was recorded, so
// there is nothing to differentiate. See Graph.Backward for the contract.
func (v Variable) Backward() (Gradients, error) {
	if v.node == nil {
		return Gradients{}, nil
	}
	return v.node.graph.Backward(v)
}

// Builder constructs the output Variable of a differentiable operation.
//
// Usage mirrors the forward op structure: register one edge per tracked
// input, then finalize with the computed value. If no edges were registered
// (all inputs were leaves, or training is off), Build returns a leaf and no
// node is allocated; untracked subgraphs prune themselves.
type Builder struct {
	graph *Graph
	edges []edge
	built bool
}

// NewBuilder starts construction for a new operation's output.
func NewBuilder() *Builder {
	return &Builder{}
}

// Edge registers one incoming edge for the node under construction.
//
// Each logical use of an input registers its own edge, even when the same
// Variable appears twice in one op: both edges point at the same predecessor
// node, so their gradients sum during the backward walk.
func (b *Builder) Edge(n *Node, gradFn GradFn) *Builder {
	b.graph = validateScope(b.graph, n)
	b.edges = append(b.edges, edge{pred: n, gradFn: gradFn})
	return b
}

// NumEdges returns the number of edges registered so far.
func (b *Builder) NumEdges() int {
	return len(b.edges)
}

// Build finalizes the operation's output. A builder is single-use.
func (b *Builder) Build(value *tensor.RawTensor) Variable {
	if b.built {
		panic("autodiff: builder already finalized, use a new Builder per operation")
	}
	b.built = true
	if len(b.edges) == 0 {
		return Variable{value: value}
	}
	return Variable{
		value: value,
		node:  b.graph.newNode(0, value, b.edges),
	}
}
