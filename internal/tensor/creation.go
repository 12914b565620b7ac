package tensor

import (
	"math/rand"

	"github.com/pkg/errors"
)

func errShapeData(n int, shape Shape) error {
	return errors.Errorf("data length %d does not match shape %s (%d elements)", n, shape, shape.NumElements())
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return NewRaw(shape, dtype, device)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return Full(shape, 1.0, dtype, device)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float32, dtype DataType, device Device) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	r.Fill(value)
	return r, nil
}

// FromFloat32s creates a tensor from float32 values, converting to dtype.
func FromFloat32s(values []float32, shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	if len(values) != r.NumElements() {
		r.Release()
		return nil, errShapeData(len(values), shape)
	}
	r.SetFloat32s(values)
	return r, nil
}

// Randn creates a tensor with values drawn from N(0, stddev).
//
// The generator is passed explicitly so initialization is reproducible;
// there is no package-level random state.
func Randn(shape Shape, dtype DataType, device Device, stddev float32, rng *rand.Rand) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	values := make([]float32, r.NumElements())
	for i := range values {
		values[i] = float32(rng.NormFloat64()) * stddev
	}
	r.SetFloat32s(values)
	return r, nil
}

// Uniform creates a tensor with values drawn from U(low, high).
func Uniform(shape Shape, dtype DataType, device Device, low, high float32, rng *rand.Rand) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	values := make([]float32, r.NumElements())
	for i := range values {
		values[i] = low + rng.Float32()*(high-low)
	}
	r.SetFloat32s(values)
	return r, nil
}
