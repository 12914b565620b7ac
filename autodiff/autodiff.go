// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// # Overview
//
// A Graph records one forward pass as an append-only arena of nodes. Each
// operation that participates in differentiation builds its output with a
// Builder, attaching one edge per differentiable input. Backward walks the
// arena in reverse creation order, which is already a valid topological
// order, and returns gradients for every tracked leaf keyed by its
// parameter key.
//
// Graphs are single use: Backward consumes the graph, and a second call
// returns an error.
//
// # Basic Usage
//
//	g := autodiff.NewGraph()
//	x := g.Tracked(xValue)
//	w := g.Tracked(wValue)
//
//	prod, _ := x.Mul(w)
//	loss, _ := prod.Sum()
//
//	grads, err := g.Backward(loss)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dw := grads[w.Key()]
package autodiff

import (
	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

// Graph records one forward pass.
type Graph = autodiff.Graph

// Node is one recorded operation output or tracked leaf.
type Node = autodiff.Node

// Variable pairs a tensor value with its optional graph provenance.
type Variable = autodiff.Variable

// Builder constructs a Variable with edges to its differentiable inputs.
type Builder = autodiff.Builder

// GradFn transforms an output gradient into the gradient of one input.
type GradFn = autodiff.GradFn

// Gradients maps parameter keys to accumulated Float32 gradients.
type Gradients = autodiff.Gradients

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return autodiff.NewGraph()
}

// NewKey returns a process-unique parameter key.
func NewKey() uint64 {
	return autodiff.NewKey()
}

// NewBuilder creates a Builder with no edges. Build on an edgeless builder
// returns an untracked leaf.
func NewBuilder() *Builder {
	return autodiff.NewBuilder()
}

// FromTensor wraps a tensor as an untracked Variable.
func FromTensor(value *tensor.RawTensor) Variable {
	return autodiff.FromTensor(value)
}
