// Package tensor provides the core tensor value container for the Floe ML framework.
package tensor

import (
	"github.com/pkg/errors"
)

// DataType represents runtime type information for tensors.
//
// The set is closed: every kernel dispatches over exactly these types, and an
// operation invoked with a type it does not implement fails with an explicit
// error at the call site rather than during backward.
type DataType int

// Supported data types for tensors.
const (
	BFloat16 DataType = iota
	Float16
	Float32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case BFloat16, Float16:
		return 2
	case Float32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// Valid reports whether dt is one of the supported data types.
func (dt DataType) Valid() bool {
	return dt >= BFloat16 && dt <= Float32
}

// errUnsupported builds the canonical "not implemented for type" error.
func errUnsupported(op string, dt DataType) error {
	return errors.Errorf("%s: not implemented for %s", op, dt)
}
