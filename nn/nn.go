// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers, losses and parameters.
package nn

import (
	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

// Parameter is a named, trainable tensor with a stable identity key.
type Parameter = nn.Parameter

// ParameterView is an exclusive mutable view of a parameter's storage.
type ParameterView = nn.ParameterView

// NewParameter creates a parameter owning the given value.
func NewParameter(name string, value *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, value)
}

// Forward is the forward-pass interface every layer implements.
type Forward = nn.Forward

// Layer is a Forward with trainable parameters.
type Layer = nn.Layer

// ParameterViews collects mutable views for all parameters of a layer.
func ParameterViews(l Layer) ([]*ParameterView, error) {
	return nn.ParameterViews(l)
}

// SetTraining toggles gradient tracking for every parameter of a layer.
func SetTraining(l Layer, training bool) {
	nn.SetTraining(l, training)
}

// Dense is a fully connected layer computing y = x @ W^T + b.
type Dense = nn.Dense

// DenseConfig configures a Dense layer.
type DenseConfig = nn.DenseConfig

// NewDense creates a Dense layer.
//
// Example:
//
//	rng := rand.New(rand.NewSource(0))
//	fc, err := nn.NewDense(nn.DenseConfig{
//	    Inputs:  784,
//	    Outputs: 128,
//	    Bias:    true,
//	    DType:   tensor.Float32,
//	    Device:  tensor.Host,
//	    Rng:     rng,
//	})
func NewDense(cfg DenseConfig) (*Dense, error) {
	return nn.NewDense(cfg)
}

// Relu applies the rectified linear unit elementwise.
type Relu = nn.Relu

// Identity passes its input through unchanged.
type Identity = nn.Identity

// Flatten reshapes its input to 2D [batch, features].
type Flatten = nn.Flatten

// Sequential chains layers, feeding each layer's output to the next.
type Sequential = nn.Sequential

// NewSequential creates a sequential container from the given layers.
func NewSequential(layers ...Layer) *Sequential {
	return nn.NewSequential(layers...)
}

// StateDict flattens a layer's parameters into a name-to-tensor map.
func StateDict(l Layer) map[string]*tensor.RawTensor {
	return nn.StateDict(l)
}

// LoadStateDict copies tensors from dict into the layer's parameters.
func LoadStateDict(l Layer, dict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict(l, dict)
}

// CrossEntropyLoss computes mean cross entropy between 2D logits and
// one-hot or soft targets of the same shape.
func CrossEntropyLoss(prediction, target autodiff.Variable) (autodiff.Variable, error) {
	return nn.CrossEntropyLoss(prediction, target)
}

// MeanSquaredLoss computes mean((prediction - target)^2).
func MeanSquaredLoss(prediction, target autodiff.Variable) (autodiff.Variable, error) {
	return nn.MeanSquaredLoss(prediction, target)
}

// OneHot encodes class labels as a [len(labels), classes] tensor.
func OneHot(labels []int, classes int, dtype tensor.DataType, device tensor.Device) (*tensor.RawTensor, error) {
	return nn.OneHot(labels, classes, dtype, device)
}
