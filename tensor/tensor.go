// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/floe-ml/floe/internal/tensor"
)

// Shape describes the dimensions of a tensor. An empty shape is a scalar.
type Shape = tensor.Shape

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Supported element types.
const (
	BFloat16 = tensor.BFloat16
	Float16  = tensor.Float16
	Float32  = tensor.Float32
)

// Device identifies where tensor storage lives.
type Device = tensor.Device

// Supported devices.
const (
	Host        = tensor.Host
	Accelerator = tensor.Accelerator
)

// RawTensor is a dtype-erased tensor over reference-counted storage.
type RawTensor = tensor.RawTensor

// NewRaw allocates an uninitialized tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.Zeros(shape, dtype, device)
}

// Ones allocates a tensor filled with ones.
func Ones(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.Ones(shape, dtype, device)
}

// Full allocates a tensor filled with the given value.
func Full(shape Shape, value float32, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.Full(shape, value, dtype, device)
}

// FromFloat32s allocates a tensor initialized from a float32 slice. The
// slice length must match the shape's element count.
func FromFloat32s(values []float32, shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.FromFloat32s(values, shape, dtype, device)
}

// Randn allocates a tensor with elements drawn from N(0, stddev).
func Randn(shape Shape, dtype DataType, device Device, stddev float32, rng *rand.Rand) (*RawTensor, error) {
	return tensor.Randn(shape, dtype, device, stddev, rng)
}

// Uniform allocates a tensor with elements drawn from U(low, high).
func Uniform(shape Shape, dtype DataType, device Device, low, high float32, rng *rand.Rand) (*RawTensor, error) {
	return tensor.Uniform(shape, dtype, device, low, high, rng)
}
