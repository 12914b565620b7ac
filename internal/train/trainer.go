// Package train implements a minibatch training loop.
package train

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/optim"
	"github.com/floe-ml/floe/internal/tensor"
)

// Batch pairs one minibatch of inputs with its targets.
type Batch struct {
	Input  *tensor.RawTensor
	Target *tensor.RawTensor
}

// LossFunc scores a prediction against a target, returning a scalar
// variable whose graph edges reach back into the model.
type LossFunc func(prediction, target autodiff.Variable) (autodiff.Variable, error)

// Config configures a Trainer.
type Config struct {
	Loss      LossFunc
	Optimizer optim.Optimizer
	// ShowProgress renders a terminal progress bar per epoch.
	ShowProgress bool
}

// Trainer runs the forward/backward/update cycle over a model.
//
// Every step builds a fresh graph, so forward-pass state never leaks
// between batches and parameter storage returns to exclusive ownership as
// soon as the backward pass finishes.
type Trainer struct {
	model nn.Layer
	cfg   Config
}

// NewTrainer creates a trainer for the given model.
func NewTrainer(model nn.Layer, cfg Config) (*Trainer, error) {
	if cfg.Loss == nil {
		return nil, errors.New("train: a loss function is required")
	}
	if cfg.Optimizer == nil {
		return nil, errors.New("train: an optimizer is required")
	}
	return &Trainer{model: model, cfg: cfg}, nil
}

// Step runs one batch through the model, backpropagates and updates the
// parameters. It returns the scalar loss value.
func (t *Trainer) Step(batch Batch) (float32, error) {
	g := autodiff.NewGraph()
	// Drop is a no-op once Backward has consumed the graph; on error paths
	// it releases the retained parameter clones so the next step still gets
	// exclusive views.
	defer g.Drop()
	output, err := t.model.Forward(g, autodiff.FromTensor(batch.Input))
	if err != nil {
		return 0, errors.Wrap(err, "train: forward")
	}
	loss, err := t.cfg.Loss(output, autodiff.FromTensor(batch.Target))
	if err != nil {
		return 0, errors.Wrap(err, "train: loss")
	}
	lossValue := loss.Value().Float32s()[0]
	if math.IsNaN(float64(lossValue)) {
		return lossValue, errors.New("train: loss is NaN")
	}

	grads, err := g.Backward(loss)
	if err != nil {
		return lossValue, errors.Wrap(err, "train: backward")
	}

	// the graph is dropped after Backward, so exclusive views are available
	views, err := nn.ParameterViews(t.model)
	if err != nil {
		return lossValue, errors.Wrap(err, "train: parameter views")
	}
	if err := t.cfg.Optimizer.Update(views, grads); err != nil {
		return lossValue, errors.Wrap(err, "train: update")
	}
	return lossValue, nil
}

// Fit trains for the given number of epochs and returns the mean loss of
// the final epoch.
func (t *Trainer) Fit(batches []Batch, epochs int) (float32, error) {
	if len(batches) == 0 {
		return 0, errors.New("train: no batches")
	}
	var epochLoss float32
	for epoch := 0; epoch < epochs; epoch++ {
		var bar *progressbar.ProgressBar
		if t.cfg.ShowProgress {
			bar = progressbar.Default(int64(len(batches)), fmt.Sprintf("epoch %d/%d", epoch+1, epochs))
		}
		var sum float64
		for _, batch := range batches {
			lossValue, err := t.Step(batch)
			if err != nil {
				return 0, errors.Wrapf(err, "epoch %d", epoch+1)
			}
			sum += float64(lossValue)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		epochLoss = float32(sum / float64(len(batches)))
		klog.V(1).Infof("epoch %d/%d: mean loss %.6f", epoch+1, epochs, epochLoss)
	}
	return epochLoss, nil
}

// Accuracy evaluates classification accuracy in inference mode. Targets
// must be one-hot or soft labels shaped like the model output.
func (t *Trainer) Accuracy(batches []Batch) (float32, error) {
	var correct, total int
	for _, batch := range batches {
		output, err := t.model.Forward(nil, autodiff.FromTensor(batch.Input))
		if err != nil {
			return 0, errors.Wrap(err, "train: eval forward")
		}
		shape := output.Shape()
		if shape.Rank() != 2 {
			return 0, errors.Errorf("train: eval expects 2D output, got %v", shape)
		}
		n, c := shape[0], shape[1]
		pred := output.Value().Float32s()
		want := batch.Target.Float32s()
		for i := 0; i < n; i++ {
			if argmax(pred[i*c:(i+1)*c]) == argmax(want[i*c:(i+1)*c]) {
				correct++
			}
		}
		total += n
	}
	if total == 0 {
		return 0, errors.New("train: no samples")
	}
	return float32(correct) / float32(total), nil
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
