package nn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

// CrossEntropyLoss computes the mean cross entropy between 2D logits
// [batch, classes] and targets of the same shape (one-hot or soft labels).
//
// The softmax is folded into the loss with the usual log-sum-exp shift, so
// large logits do not overflow.
func CrossEntropyLoss(prediction, target autodiff.Variable) (autodiff.Variable, error) {
	x := prediction.Value()
	t := target.Value()
	if x.Shape().Rank() != 2 {
		return autodiff.Variable{}, errors.Errorf("cross entropy expects 2D logits, got %v", x.Shape())
	}
	if !x.Shape().Equal(t.Shape()) {
		return autodiff.Variable{}, errors.Errorf("cross entropy: shape mismatch %v vs %v", x.Shape(), t.Shape())
	}
	n, c := x.Shape()[0], x.Shape()[1]
	xs := x.Float32s()
	ts := t.Float32s()

	// softmax rows are reused by the backward closure
	soft := make([]float32, len(xs))
	var loss float64
	for i := 0; i < n; i++ {
		row := xs[i*c : (i+1)*c]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - max))
			soft[i*c+j] = float32(e)
			sum += e
		}
		logSum := math.Log(sum)
		for j := range row {
			soft[i*c+j] = float32(float64(soft[i*c+j]) / sum)
			loss -= float64(ts[i*c+j]) * (float64(row[j]-max) - logSum)
		}
	}
	loss /= float64(n)

	value, err := tensor.Full(tensor.Shape{}, float32(loss), x.DType(), x.Device())
	if err != nil {
		return autodiff.Variable{}, err
	}

	b := autodiff.NewBuilder()
	if prediction.Tracked() {
		shape := x.Shape().Clone()
		dtype := x.DType()
		device := x.Device()
		b.Edge(prediction.Node(), func(og *tensor.RawTensor) (*tensor.RawTensor, error) {
			// dx = og * (softmax(x) - t) / n
			scale := og.Float32s()[0] / float32(n)
			grad := make([]float32, len(soft))
			for i := range grad {
				grad[i] = scale * (soft[i] - ts[i])
			}
			return tensor.FromFloat32s(grad, shape, dtype, device)
		})
	}
	return b.Build(value), nil
}

// MeanSquaredLoss computes mean((prediction - target)^2) over all elements.
func MeanSquaredLoss(prediction, target autodiff.Variable) (autodiff.Variable, error) {
	diff, err := prediction.Sub(target)
	if err != nil {
		return autodiff.Variable{}, errors.Wrap(err, "mse")
	}
	sq, err := diff.Mul(diff)
	if err != nil {
		return autodiff.Variable{}, errors.Wrap(err, "mse")
	}
	sum, err := sq.Sum()
	if err != nil {
		return autodiff.Variable{}, errors.Wrap(err, "mse")
	}
	return sum.Scale(1.0 / float32(prediction.Value().NumElements()))
}

// OneHot encodes class labels as a [len(labels), classes] tensor.
func OneHot(labels []int, classes int, dtype tensor.DataType, device tensor.Device) (*tensor.RawTensor, error) {
	values := make([]float32, len(labels)*classes)
	for i, l := range labels {
		if l < 0 || l >= classes {
			return nil, errors.Errorf("one hot: label %d out of range [0, %d)", l, classes)
		}
		values[i*classes+l] = 1
	}
	return tensor.FromFloat32s(values, tensor.Shape{len(labels), classes}, dtype, device)
}
