package tensor

import (
	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/parallel"
)

// CPU reference kernels. All arithmetic is carried out in float32; the half
// precision types convert at the boundary. Every kernel allocates a fresh
// output tensor, in-place mutation happens only through ScaledAdd on an
// exclusively borrowed view.

var kernelParallel = parallel.DefaultConfig()

// Fill sets every element to the given value.
func (r *RawTensor) Fill(value float32) {
	r.device.dispatch(func() {
		n := r.NumElements()
		values := make([]float32, n)
		for i := range values {
			values[i] = value
		}
		r.SetFloat32s(values)
	})
}

// checkBinary validates that a and b are compatible operands.
func checkBinary(op string, a, b *RawTensor) error {
	if !a.shape.Equal(b.shape) {
		return errors.Errorf("%s: shape mismatch %s vs %s", op, a.shape, b.shape)
	}
	if a.dtype != b.dtype {
		return errors.Errorf("%s: dtype mismatch %s vs %s", op, a.dtype, b.dtype)
	}
	if a.device != b.device {
		return errors.Errorf("%s: device mismatch %s vs %s", op, a.device, b.device)
	}
	return nil
}

func (r *RawTensor) binary(op string, other *RawTensor, f func(a, b float32) float32) (*RawTensor, error) {
	if err := checkBinary(op, r, other); err != nil {
		return nil, err
	}
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		b := other.Float32s()
		res := make([]float32, len(a))
		for i := range a {
			res[i] = f(a[i], b[i])
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// Add returns the element-wise sum r + other.
func (r *RawTensor) Add(other *RawTensor) (*RawTensor, error) {
	return r.binary("add", other, func(a, b float32) float32 { return a + b })
}

// Sub returns the element-wise difference r - other.
func (r *RawTensor) Sub(other *RawTensor) (*RawTensor, error) {
	return r.binary("sub", other, func(a, b float32) float32 { return a - b })
}

// Mul returns the element-wise product r * other.
func (r *RawTensor) Mul(other *RawTensor) (*RawTensor, error) {
	return r.binary("mul", other, func(a, b float32) float32 { return a * b })
}

// ScaledAdd performs the in-place update r += alpha * x.
//
// This is the primitive gradient accumulation and SGD both reduce to.
// r must be exclusively borrowed (see MakeViewMut); x may be shared.
func (r *RawTensor) ScaledAdd(alpha float32, x *RawTensor) error {
	if err := checkBinary("scaled_add", r, x); err != nil {
		return err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		b := x.Float32s()
		for i := range a {
			a[i] += alpha * b[i]
		}
		if r.dtype != Float32 {
			r.SetFloat32s(a)
		}
	})
	return nil
}

// Scale returns alpha * r as a new tensor.
func (r *RawTensor) Scale(alpha float32) (*RawTensor, error) {
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		res := make([]float32, len(a))
		for i := range a {
			res[i] = alpha * a[i]
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// MatMul returns the matrix product r @ other for 2D tensors.
func (r *RawTensor) MatMul(other *RawTensor) (*RawTensor, error) {
	if r.shape.Rank() != 2 || other.shape.Rank() != 2 {
		return nil, errors.Errorf("matmul: expected 2D tensors, got %s and %s", r.shape, other.shape)
	}
	m, k := r.shape[0], r.shape[1]
	k2, n := other.shape[0], other.shape[1]
	if k != k2 {
		return nil, errors.Errorf("matmul: inner dimensions differ: %s @ %s", r.shape, other.shape)
	}
	if r.dtype != other.dtype {
		return nil, errors.Errorf("matmul: dtype mismatch %s vs %s", r.dtype, other.dtype)
	}
	out, err := NewRaw(Shape{m, n}, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		b := other.Float32s()
		res := make([]float32, m*n)
		// output rows are independent
		parallel.ForRows(m, k*n, func(i int) {
			for l := 0; l < k; l++ {
				av := a[i*k+l]
				if av == 0 {
					continue
				}
				row := b[l*n : (l+1)*n]
				outRow := res[i*n : (i+1)*n]
				for j, bv := range row {
					outRow[j] += av * bv
				}
			}
		}, kernelParallel)
		out.SetFloat32s(res)
	})
	return out, nil
}

// Transpose2D returns the transposed copy of a 2D tensor.
func (r *RawTensor) Transpose2D() (*RawTensor, error) {
	if r.shape.Rank() != 2 {
		return nil, errors.Errorf("transpose: expected 2D tensor, got %s", r.shape)
	}
	m, n := r.shape[0], r.shape[1]
	out, err := NewRaw(Shape{n, m}, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		res := make([]float32, len(a))
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				res[j*m+i] = a[i*n+j]
			}
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// Sum returns the scalar sum of all elements.
func (r *RawTensor) Sum() (*RawTensor, error) {
	out, err := NewRaw(Shape{}, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		var acc float32
		for _, v := range r.Float32s() {
			acc += v
		}
		out.SetFloat32s([]float32{acc})
	})
	return out, nil
}

// SumAxis0 reduces a 2D tensor over its first axis: [n, c] -> [c].
func (r *RawTensor) SumAxis0() (*RawTensor, error) {
	if r.shape.Rank() != 2 {
		return nil, errors.Errorf("sum_axis0: expected 2D tensor, got %s", r.shape)
	}
	n, c := r.shape[0], r.shape[1]
	out, err := NewRaw(Shape{c}, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		res := make([]float32, c)
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				res[j] += a[i*c+j]
			}
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// AddRowwise adds a 1D bias to every row of a 2D tensor: [n, c] + [c].
func (r *RawTensor) AddRowwise(bias *RawTensor) (*RawTensor, error) {
	if r.shape.Rank() != 2 || bias.shape.Rank() != 1 || r.shape[1] != bias.shape[0] {
		return nil, errors.Errorf("add_rowwise: incompatible shapes %s and %s", r.shape, bias.shape)
	}
	if r.dtype != bias.dtype {
		return nil, errors.Errorf("add_rowwise: dtype mismatch %s vs %s", r.dtype, bias.dtype)
	}
	n, c := r.shape[0], r.shape[1]
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		b := bias.Float32s()
		res := make([]float32, len(a))
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				res[i*c+j] = a[i*c+j] + b[j]
			}
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// Relu returns max(0, x) element-wise.
func (r *RawTensor) Relu() (*RawTensor, error) {
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		a := r.Float32s()
		res := make([]float32, len(a))
		for i, v := range a {
			if v > 0 {
				res[i] = v
			}
		}
		out.SetFloat32s(res)
	})
	return out, nil
}

// ReluBackward routes the output gradient through the ReLU mask of input:
// positions where input <= 0 receive zero gradient.
func ReluBackward(input, outputGrad *RawTensor) (*RawTensor, error) {
	if err := checkBinary("relu_backward", input, outputGrad); err != nil {
		return nil, err
	}
	out, err := NewRaw(input.shape, input.dtype, input.device)
	if err != nil {
		return nil, err
	}
	input.device.dispatch(func() {
		x := input.Float32s()
		g := outputGrad.Float32s()
		res := make([]float32, len(x))
		for i := range x {
			if x[i] > 0 {
				res[i] = g[i]
			}
		}
		out.SetFloat32s(res)
	})
	return out, nil
}
