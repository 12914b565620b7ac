package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

func newDense(t *testing.T, inputs, outputs int, bias bool, seed int64) *Dense {
	t.Helper()
	d, err := NewDense(DenseConfig{
		Inputs:  inputs,
		Outputs: outputs,
		Bias:    bias,
		DType:   tensor.Float32,
		Device:  tensor.Host,
		Rng:     rand.New(rand.NewSource(seed)),
	})
	require.NoError(t, err)
	return d
}

func TestNewDense_Validation(t *testing.T) {
	_, err := NewDense(DenseConfig{Inputs: 0, Outputs: 2, Rng: rand.New(rand.NewSource(0))})
	assert.Error(t, err)

	_, err = NewDense(DenseConfig{Inputs: 2, Outputs: 2})
	assert.ErrorContains(t, err, "random source")
}

func TestDense_Shapes(t *testing.T) {
	d := newDense(t, 3, 4, true, 0)

	assert.Equal(t, tensor.Shape{4, 3}, d.Weight().Shape())
	assert.Equal(t, tensor.Shape{4}, d.Bias().Shape())
	assert.Len(t, d.Parameters(), 2)

	d2 := newDense(t, 3, 4, false, 0)
	assert.Nil(t, d2.Bias())
	assert.Len(t, d2.Parameters(), 1)
}

func TestDense_ForwardKnownValues(t *testing.T) {
	d := newDense(t, 2, 2, true, 0)
	// overwrite initialized values with a fixed weight and bias
	require.NoError(t, LoadStateDict(d, map[string]*tensor.RawTensor{
		"0.weight": fromValues(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}),
		"1.bias":   fromValues(t, []float32{10, 20}, tensor.Shape{2}),
	}))

	input := autodiff.FromTensor(fromValues(t, []float32{1, 1}, tensor.Shape{1, 2}))
	out, err := d.Forward(nil, input)
	require.NoError(t, err)

	// y = x @ W^T + b with W = [[1,2],[3,4]]
	assert.Equal(t, []float32{13, 27}, out.Value().Float32s())
	assert.False(t, out.Tracked())
}

func TestDense_Activation(t *testing.T) {
	d, err := NewDense(DenseConfig{
		Inputs:     2,
		Outputs:    2,
		DType:      tensor.Float32,
		Device:     tensor.Host,
		Activation: Relu{},
		Rng:        rand.New(rand.NewSource(4)),
	})
	require.NoError(t, err)
	require.NoError(t, LoadStateDict(d, map[string]*tensor.RawTensor{
		"0.weight": fromValues(t, []float32{1, 0, -1, 0}, tensor.Shape{2, 2}),
	}))

	input := autodiff.FromTensor(fromValues(t, []float32{2, 3}, tensor.Shape{1, 2}))
	out, err := d.Forward(nil, input)
	require.NoError(t, err)
	// pre-activation [2, -2], relu clamps the negative lane
	assert.Equal(t, []float32{2, 0}, out.Value().Float32s())
}

func TestDense_InferenceBuildsNoNodes(t *testing.T) {
	d := newDense(t, 2, 3, true, 1)
	SetTraining(d, false)

	g := autodiff.NewGraph()
	input := autodiff.FromTensor(fromValues(t, []float32{1, 2}, tensor.Shape{1, 2}))
	out, err := d.Forward(g, input)
	require.NoError(t, err)

	assert.False(t, out.Tracked())
	assert.Equal(t, 0, g.NumNodes())
}

func TestDense_BiasGradIsColumnSums(t *testing.T) {
	d := newDense(t, 2, 2, true, 2)

	g := autodiff.NewGraph()
	input := autodiff.FromTensor(fromValues(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}))
	out, err := d.Forward(g, input)
	require.NoError(t, err)
	loss, err := out.Sum()
	require.NoError(t, err)

	grads, err := g.Backward(loss)
	require.NoError(t, err)

	// d(sum(y))/db sums the ones gradient over the batch
	assert.Equal(t, []float32{3, 3}, grads[d.Bias().Key()].Float32s())
}

// lossValue runs sum(dense(x)) in inference mode for finite differencing.
func lossValue(t *testing.T, d *Dense, input *tensor.RawTensor) float32 {
	t.Helper()
	out, err := d.Forward(nil, autodiff.FromTensor(input))
	require.NoError(t, err)
	sum, err := out.Value().Sum()
	require.NoError(t, err)
	return sum.Float32s()[0]
}

func TestDense_GradMatchesFiniteDifference(t *testing.T) {
	const eps = 1e-2
	d := newDense(t, 3, 2, true, 3)
	inputValues := []float32{0.5, -1, 2, 0.25, 1.5, -0.75}
	input := fromValues(t, inputValues, tensor.Shape{2, 3})

	g := autodiff.NewGraph()
	tracked := g.Tracked(input)
	out, err := d.Forward(g, tracked)
	require.NoError(t, err)
	loss, err := out.Sum()
	require.NoError(t, err)
	grads, err := g.Backward(loss)
	require.NoError(t, err)

	weightGrad := grads[d.Weight().Key()].Float32s()
	weightValues := append([]float32(nil), d.Weight().Value().Float32s()...)
	biasValues := append([]float32(nil), d.Bias().Value().Float32s()...)
	for i := range weightValues {
		perturbed := append([]float32(nil), weightValues...)
		perturbed[i] += eps
		require.NoError(t, LoadStateDict(d, map[string]*tensor.RawTensor{
			"0.weight": fromValues(t, perturbed, d.Weight().Shape()),
			"1.bias":   fromValues(t, biasValues, d.Bias().Shape()),
		}))
		plus := lossValue(t, d, input)

		perturbed[i] -= 2 * eps
		require.NoError(t, LoadStateDict(d, map[string]*tensor.RawTensor{
			"0.weight": fromValues(t, perturbed, d.Weight().Shape()),
			"1.bias":   fromValues(t, biasValues, d.Bias().Shape()),
		}))
		minus := lossValue(t, d, input)

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, weightGrad[i], 1e-2, "weight element %d", i)
	}

	require.NoError(t, LoadStateDict(d, map[string]*tensor.RawTensor{
		"0.weight": fromValues(t, weightValues, d.Weight().Shape()),
		"1.bias":   fromValues(t, biasValues, d.Bias().Shape()),
	}))

	inputGrad := grads[tracked.Key()].Float32s()
	for i := range inputValues {
		perturbed := append([]float32(nil), inputValues...)
		perturbed[i] += eps
		plus := lossValue(t, d, fromValues(t, perturbed, tensor.Shape{2, 3}))
		perturbed[i] -= 2 * eps
		minus := lossValue(t, d, fromValues(t, perturbed, tensor.Shape{2, 3}))

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, inputGrad[i], 1e-2, "input element %d", i)
	}
}
