package tensor

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// tensorBuffer is a reference-counted shared buffer.
// This enables cheap cloning: forward passes may hand the same storage to
// many consumers, and exclusive mutable access is granted only when the
// reference count is exactly one.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for Clone operations).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// isUnique returns true if this buffer has only one reference.
func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the dynamic-rank tensor value.
//
// A RawTensor owns (possibly shared) storage plus shape, dtype, and device
// metadata. It is the erased form the autograd machinery works with: graph
// closures capture RawTensors regardless of rank or element type.
type RawTensor struct {
	buffer *tensorBuffer // Shared reference-counted buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Storage location
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid shape")
	}
	if !dtype.Valid() {
		return nil, errors.Errorf("invalid dtype %d", int(dtype))
	}

	byteSize := shape.NumElements() * dtype.Size()
	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's storage location.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic("tensor dtype is " + r.dtype.String() + ", not float32")
	}
	data := r.buffer.data
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsBFloat16 interprets the data as []bfloat16.BFloat16.
// Panics if the tensor's dtype is not BFloat16.
func (r *RawTensor) AsBFloat16() []bfloat16.BFloat16 {
	if r.dtype != BFloat16 {
		panic("tensor dtype is " + r.dtype.String() + ", not bfloat16")
	}
	data := r.buffer.data
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*bfloat16.BFloat16)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	if r.dtype != Float16 {
		panic("tensor dtype is " + r.dtype.String() + ", not float16")
	}
	data := r.buffer.data
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Float32s returns the tensor's elements converted to float32.
//
// For Float32 tensors this is the live storage (no copy); for the half
// precision types a converted copy is returned. Mutating the result of a
// half precision tensor does not write back, use SetFloat32s for that.
func (r *RawTensor) Float32s() []float32 {
	switch r.dtype {
	case Float32:
		return r.AsFloat32()
	case BFloat16:
		src := r.AsBFloat16()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = v.Float32()
		}
		return out
	case Float16:
		src := r.AsFloat16()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = v.Float32()
		}
		return out
	default:
		panic("unknown data type")
	}
}

// SetFloat32s stores the given float32 values into the tensor, converting to
// the tensor's dtype. Panics if the length does not match NumElements.
func (r *RawTensor) SetFloat32s(values []float32) {
	if len(values) != r.NumElements() {
		panic("SetFloat32s: length mismatch")
	}
	switch r.dtype {
	case Float32:
		copy(r.AsFloat32(), values)
	case BFloat16:
		dst := r.AsBFloat16()
		for i, v := range values {
			dst[i] = bfloat16.FromFloat32(v)
		}
	case Float16:
		dst := r.AsFloat16()
		for i, v := range values {
			dst[i] = float16.Fromfloat32(v)
		}
	default:
		panic("unknown data type")
	}
}

// Clone creates a shallow copy of the RawTensor (shares the buffer with
// reference counting). Cloning is how a forward pass hands a parameter's
// value to graph closures without copying data.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Release decrements the reference count and deallocates if it reaches 0.
// Graph scopes call this when they drop the values their closures captured.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// MakeViewMut returns the tensor itself as an exclusively borrowed mutable
// view, or an error if the storage is currently shared.
//
// This is the gate in-place updates go through: an optimizer must not mutate
// a parameter while a live forward pass still shares its storage. The failure
// is reported to the caller rather than silently copying, because a silent
// copy would detach the update from the storage everyone else sees.
func (r *RawTensor) MakeViewMut() (*RawTensor, error) {
	if !r.IsUnique() {
		return nil, errors.Errorf(
			"cannot borrow mutably: storage is shared (%d references); drop forward-pass values first",
			r.buffer.refCount.Load())
	}
	return r, nil
}

// WithShape returns a view of the same storage under a different shape.
// The new shape must describe the same number of elements.
//
// The view does not count as a new shared reference: the reference count
// tracks explicit Clones (the sharing MakeViewMut guards against), while
// transient views live and die with the garbage collector.
func (r *RawTensor) WithShape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, errors.Errorf("cannot reshape %s to %s: element count differs", r.shape, shape)
	}
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// CastTo returns a new tensor with the same values converted to the given
// dtype. Casting to the same dtype returns a deep copy.
func (r *RawTensor) CastTo(dtype DataType) (*RawTensor, error) {
	if !dtype.Valid() {
		return nil, errUnsupported("cast", dtype)
	}
	out, err := NewRaw(r.shape, dtype, r.device)
	if err != nil {
		return nil, err
	}
	r.device.dispatch(func() {
		out.SetFloat32s(r.Float32s())
	})
	return out, nil
}

// ToDevice returns a copy of the tensor on the given device.
func (r *RawTensor) ToDevice(device Device) (*RawTensor, error) {
	out, err := NewRaw(r.shape, r.dtype, device)
	if err != nil {
		return nil, err
	}
	copy(out.buffer.data, r.buffer.data)
	return out, nil
}
