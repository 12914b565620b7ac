package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

// Adam implements the Adam optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * grad
//	v_t = beta2 * v_{t-1} + (1-beta2) * grad^2
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
//
// Moment buffers are kept in Float32 and keyed by parameter key.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	lr    float32
	beta1 float32
	beta2 float32
	eps   float32
	t     int
	m     map[uint64]*tensor.RawTensor
	v     map[uint64]*tensor.RawTensor
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR    float32    // learning rate (default 0.001)
	Betas [2]float32 // moment decay rates (default 0.9, 0.999)
	Eps   float32    // numerical stability term (default 1e-8)
}

// NewAdam creates an Adam optimizer.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas == [2]float32{} {
		config.Betas = [2]float32{0.9, 0.999}
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[uint64]*tensor.RawTensor),
		v:     make(map[uint64]*tensor.RawTensor),
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float32 {
	return a.lr
}

// SetLR updates the learning rate, for scheduling.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Update implements Optimizer.
func (a *Adam) Update(views []*nn.ParameterView, grads autodiff.Gradients) error {
	a.t++
	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for _, view := range views {
		grad, ok := grads[view.Key()]
		if !ok {
			continue
		}
		step, err := a.step(view.Key(), grad, bc1, bc2)
		if err != nil {
			return errors.Wrapf(err, "adam: parameter %q", view.Name())
		}
		if err := stepInto(view.Value(), -a.lr, step); err != nil {
			return errors.Wrapf(err, "adam: parameter %q", view.Name())
		}
	}
	return nil
}

// step folds grad into the moment buffers and returns the bias-corrected
// update direction.
func (a *Adam) step(key uint64, grad *tensor.RawTensor, bc1, bc2 float32) (*tensor.RawTensor, error) {
	m, ok := a.m[key]
	if !ok {
		var err error
		if m, err = tensor.Zeros(grad.Shape(), tensor.Float32, grad.Device()); err != nil {
			return nil, err
		}
		v, err := tensor.Zeros(grad.Shape(), tensor.Float32, grad.Device())
		if err != nil {
			return nil, err
		}
		a.m[key] = m
		a.v[key] = v
	}
	v := a.v[key]

	ms := m.AsFloat32()
	vs := v.AsFloat32()
	gs := grad.Float32s()

	out := make([]float32, len(gs))
	for i, g := range gs {
		ms[i] = a.beta1*ms[i] + (1-a.beta1)*g
		vs[i] = a.beta2*vs[i] + (1-a.beta2)*g*g
		mHat := ms[i] / bc1
		vHat := vs[i] / bc2
		out[i] = mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
	return tensor.FromFloat32s(out, grad.Shape(), tensor.Float32, grad.Device())
}
