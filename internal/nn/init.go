package nn

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/tensor"
)

// XavierUniform draws weights from U(-a, a) with a = sqrt(6 / (fanIn + fanOut)).
// The shape must be [fanOut, fanIn].
func XavierUniform(shape tensor.Shape, dtype tensor.DataType, device tensor.Device, rng *rand.Rand) (*tensor.RawTensor, error) {
	if shape.Rank() != 2 {
		return nil, errors.Errorf("xavier init expects a 2D shape, got %v", shape)
	}
	fanOut, fanIn := shape[0], shape[1]
	a := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	return tensor.Uniform(shape, dtype, device, -a, a, rng)
}

// HeNormal draws weights from N(0, sqrt(2 / fanIn)). The shape must be
// [fanOut, fanIn].
func HeNormal(shape tensor.Shape, dtype tensor.DataType, device tensor.Device, rng *rand.Rand) (*tensor.RawTensor, error) {
	if shape.Rank() != 2 {
		return nil, errors.Errorf("he init expects a 2D shape, got %v", shape)
	}
	fanIn := shape[1]
	stddev := float32(math.Sqrt(2.0 / float64(fanIn)))
	return tensor.Randn(shape, dtype, device, stddev, rng)
}
