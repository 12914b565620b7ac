// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores model parameters in SafeTensors
// format.
package checkpoint

import (
	"github.com/floe-ml/floe/internal/checkpoint"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

// Save writes tensors to path in SafeTensors format.
func Save(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	return checkpoint.Save(path, tensors, metadata)
}

// Load reads all tensors and metadata from a SafeTensors file.
func Load(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	return checkpoint.Load(path)
}

// SaveModel writes a model's parameter state to path.
func SaveModel(path string, model nn.Layer, metadata map[string]string) error {
	return checkpoint.Save(path, nn.StateDict(model), metadata)
}

// LoadModel restores a model's parameter state from path. The model must
// have the same structure the checkpoint was saved from.
func LoadModel(path string, model nn.Layer) error {
	dict, _, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	return nn.LoadStateDict(model, dict)
}
