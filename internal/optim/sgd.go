package optim

import (
	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param -= lr * grad
//
// With momentum:
//
//	velocity = momentum * velocity + grad
//	param -= lr * velocity
//
// Velocity buffers are kept in Float32 and keyed by parameter key, so a
// parameter shared across layers accumulates into a single buffer.
type SGD struct {
	lr         float32
	momentum   float32
	velocities map[uint64]*tensor.RawTensor
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float32 // learning rate (default 0.01)
	Momentum float32 // momentum factor, range [0, 1)
}

// NewSGD creates an SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[uint64]*tensor.RawTensor),
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate, for scheduling.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Update implements Optimizer.
func (s *SGD) Update(views []*nn.ParameterView, grads autodiff.Gradients) error {
	for _, view := range views {
		grad, ok := grads[view.Key()]
		if !ok {
			continue
		}
		step := grad
		if s.momentum != 0 {
			var err error
			step, err = s.velocity(view.Key(), grad)
			if err != nil {
				return errors.Wrapf(err, "sgd: parameter %q", view.Name())
			}
		}
		if err := stepInto(view.Value(), -s.lr, step); err != nil {
			return errors.Wrapf(err, "sgd: parameter %q", view.Name())
		}
	}
	return nil
}

// velocity folds grad into the parameter's velocity buffer and returns it.
func (s *SGD) velocity(key uint64, grad *tensor.RawTensor) (*tensor.RawTensor, error) {
	v, ok := s.velocities[key]
	if !ok {
		var err error
		v, err = tensor.Zeros(grad.Shape(), tensor.Float32, grad.Device())
		if err != nil {
			return nil, err
		}
		s.velocities[key] = v
	}
	scaled, err := v.Scale(s.momentum)
	if err != nil {
		return nil, err
	}
	if err := scaled.ScaledAdd(1, grad); err != nil {
		return nil, err
	}
	s.velocities[key] = scaled
	return scaled, nil
}
