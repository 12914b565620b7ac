package train

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/optim"
	"github.com/floe-ml/floe/internal/tensor"
)

func xorBatch(t *testing.T) Batch {
	t.Helper()
	input, err := tensor.FromFloat32s(
		[]float32{0, 0, 0, 1, 1, 0, 1, 1},
		tensor.Shape{4, 2}, tensor.Float32, tensor.Host,
	)
	require.NoError(t, err)
	target, err := nn.OneHot([]int{0, 1, 1, 0}, 2, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	return Batch{Input: input, Target: target}
}

func xorModel(t *testing.T, seed int64) nn.Layer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	fc1, err := nn.NewDense(nn.DenseConfig{Inputs: 2, Outputs: 8, Bias: true, DType: tensor.Float32, Device: tensor.Host, Rng: rng})
	require.NoError(t, err)
	fc2, err := nn.NewDense(nn.DenseConfig{Inputs: 8, Outputs: 2, Bias: true, DType: tensor.Float32, Device: tensor.Host, Rng: rng})
	require.NoError(t, err)
	return nn.NewSequential(fc1, nn.Relu{}, fc2)
}

func TestNewTrainer_Validation(t *testing.T) {
	model := xorModel(t, 1)

	_, err := NewTrainer(model, Config{Optimizer: optim.NewSGD(optim.SGDConfig{})})
	assert.ErrorContains(t, err, "loss function")

	_, err = NewTrainer(model, Config{Loss: nn.CrossEntropyLoss})
	assert.ErrorContains(t, err, "optimizer")
}

func TestTrainer_StepReturnsLoss(t *testing.T) {
	trainer, err := NewTrainer(xorModel(t, 2), Config{
		Loss:      nn.CrossEntropyLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{LR: 0.1}),
	})
	require.NoError(t, err)

	loss, err := trainer.Step(xorBatch(t))
	require.NoError(t, err)
	assert.Greater(t, loss, float32(0))
}

func TestTrainer_LossDecreases(t *testing.T) {
	trainer, err := NewTrainer(xorModel(t, 3), Config{
		Loss:      nn.CrossEntropyLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9}),
	})
	require.NoError(t, err)

	batch := xorBatch(t)
	first, err := trainer.Step(batch)
	require.NoError(t, err)

	final, err := trainer.Fit([]Batch{batch}, 200)
	require.NoError(t, err)
	assert.Less(t, final, first)
}

func TestTrainer_FitEmptyBatches(t *testing.T) {
	trainer, err := NewTrainer(xorModel(t, 4), Config{
		Loss:      nn.CrossEntropyLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{}),
	})
	require.NoError(t, err)

	_, err = trainer.Fit(nil, 1)
	assert.ErrorContains(t, err, "no batches")
}

func TestTrainer_LearnsXOR(t *testing.T) {
	trainer, err := NewTrainer(xorModel(t, 42), Config{
		Loss:      nn.CrossEntropyLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9}),
	})
	require.NoError(t, err)

	batches := []Batch{xorBatch(t)}
	final, err := trainer.Fit(batches, 2000)
	require.NoError(t, err)
	assert.Less(t, final, float32(0.1))

	acc, err := trainer.Accuracy(batches)
	require.NoError(t, err)
	assert.Equal(t, float32(1), acc)
}

func TestTrainer_StepRecoversAfterFailedBatch(t *testing.T) {
	calls := 0
	flakyLoss := func(prediction, target autodiff.Variable) (autodiff.Variable, error) {
		calls++
		if calls == 1 {
			bad, err := tensor.Full(tensor.Shape{}, float32(math.NaN()), tensor.Float32, tensor.Host)
			require.NoError(t, err)
			return autodiff.FromTensor(bad), nil
		}
		return nn.CrossEntropyLoss(prediction, target)
	}

	trainer, err := NewTrainer(xorModel(t, 6), Config{
		Loss:      flakyLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{LR: 0.1}),
	})
	require.NoError(t, err)

	batch := xorBatch(t)
	_, err = trainer.Step(batch)
	assert.ErrorContains(t, err, "NaN")

	// the abandoned pass must not keep parameter storage shared
	loss, err := trainer.Step(batch)
	require.NoError(t, err)
	assert.Greater(t, loss, float32(0))
}

func TestTrainer_MSERegression(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	fc, err := nn.NewDense(nn.DenseConfig{Inputs: 1, Outputs: 1, Bias: true, DType: tensor.Float32, Device: tensor.Host, Rng: rng})
	require.NoError(t, err)

	// y = 2x + 1
	input, err := tensor.FromFloat32s([]float32{0, 1, 2, 3}, tensor.Shape{4, 1}, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	target, err := tensor.FromFloat32s([]float32{1, 3, 5, 7}, tensor.Shape{4, 1}, tensor.Float32, tensor.Host)
	require.NoError(t, err)

	trainer, err := NewTrainer(fc, Config{
		Loss:      nn.MeanSquaredLoss,
		Optimizer: optim.NewSGD(optim.SGDConfig{LR: 0.05}),
	})
	require.NoError(t, err)

	final, err := trainer.Fit([]Batch{{Input: input, Target: target}}, 500)
	require.NoError(t, err)
	assert.Less(t, final, float32(0.01))

	assert.InDelta(t, 2, fc.Weight().Value().Float32s()[0], 0.1)
	assert.InDelta(t, 1, fc.Bias().Value().Float32s()[0], 0.2)
}
