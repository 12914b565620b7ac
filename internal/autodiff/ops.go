package autodiff

import (
	"github.com/floe-ml/floe/internal/tensor"
	"github.com/pkg/errors"
)

// Differentiable operations on Variables.
//
// Each op computes its forward value with the tensor kernels, then wires
// provenance with a Builder: one edge per tracked input, each edge carrying
// the closure that turns the output gradient into that input's gradient.
// Inputs without provenance register nothing, so an op whose inputs are all
// leaves produces a leaf.

// Add returns v + other element-wise.
func (v Variable) Add(other Variable) (Variable, error) {
	value, err := v.value.Add(other.value)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad, nil
		})
	}
	if n := other.node; n != nil {
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad, nil
		})
	}
	return b.Build(value), nil
}

// Sub returns v - other element-wise.
func (v Variable) Sub(other Variable) (Variable, error) {
	value, err := v.value.Sub(other.value)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad, nil
		})
	}
	if n := other.node; n != nil {
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad.Scale(-1)
		})
	}
	return b.Build(value), nil
}

// Mul returns v * other element-wise.
func (v Variable) Mul(other Variable) (Variable, error) {
	value, err := v.value.Mul(other.value)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		bVal := other.value
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad.Mul(bVal)
		})
	}
	if n := other.node; n != nil {
		aVal := v.value
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad.Mul(aVal)
		})
	}
	return b.Build(value), nil
}

// Scale returns alpha * v.
func (v Variable) Scale(alpha float32) (Variable, error) {
	value, err := v.value.Scale(alpha)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad.Scale(alpha)
		})
	}
	return b.Build(value), nil
}

// Dot returns the matrix product v @ other for 2D variables.
func (v Variable) Dot(other Variable) (Variable, error) {
	value, err := v.value.MatMul(other.value)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		bVal := other.value
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			// d(A@B)/dA = outputGrad @ B^T
			bT, err := bVal.Transpose2D()
			if err != nil {
				return nil, err
			}
			return outputGrad.MatMul(bT)
		})
	}
	if n := other.node; n != nil {
		aVal := v.value
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			// d(A@B)/dB = A^T @ outputGrad
			aT, err := aVal.Transpose2D()
			if err != nil {
				return nil, err
			}
			return aT.MatMul(outputGrad)
		})
	}
	return b.Build(value), nil
}

// Sum reduces the variable to the scalar sum of its elements.
func (v Variable) Sum() (Variable, error) {
	value, err := v.value.Sum()
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		shape := v.value.Shape().Clone()
		dtype := v.value.DType()
		device := v.value.Device()
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			// d(sum(x))/dx broadcasts the scalar gradient over x's shape.
			return tensor.Full(shape, outputGrad.Float32s()[0], dtype, device)
		})
	}
	return b.Build(value), nil
}

// Reshape returns a view of the variable under a new shape.
func (v Variable) Reshape(shape tensor.Shape) (Variable, error) {
	value, err := v.value.WithShape(shape)
	if err != nil {
		return Variable{}, err
	}
	b := NewBuilder()
	if n := v.node; n != nil {
		orig := v.value.Shape().Clone()
		b.Edge(n, func(outputGrad *tensor.RawTensor) (*tensor.RawTensor, error) {
			return outputGrad.WithShape(orig)
		})
	}
	return b.Build(value), nil
}

// Flatten reshapes a rank >= 1 variable into 2D [batch, features].
func (v Variable) Flatten() (Variable, error) {
	shape := v.value.Shape()
	if shape.Rank() < 1 {
		return Variable{}, errors.Errorf("flatten: expected rank >= 1, got shape %s", shape)
	}
	features := 1
	for _, dim := range shape[1:] {
		features *= dim
	}
	return v.Reshape(tensor.Shape{shape[0], features})
}
