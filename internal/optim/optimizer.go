// Package optim implements optimization algorithms for training.
//
// Optimizers consume the gradient map produced by a backward pass and
// apply in-place updates through mutable parameter views:
//
//	views, _ := nn.ParameterViews(model)
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//
//	for batch := range batches {
//	    g := autodiff.NewGraph()
//	    output, _ := model.Forward(g, input)
//	    loss, _ := nn.CrossEntropyLoss(output, target)
//	    grads, _ := g.Backward(loss)
//	    _ = sgd.Update(views, grads)
//	}
package optim

import (
	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

// Optimizer applies gradients to parameters.
//
// Parameters whose key has no gradient entry did not participate in the
// forward pass and are skipped. Gradients arrive as Float32 regardless of
// the parameter dtype; implementations cast the final step to the
// parameter's dtype before applying it.
type Optimizer interface {
	Update(views []*nn.ParameterView, grads autodiff.Gradients) error
}

// stepInto applies value += alpha * step, casting step to the value's
// dtype first when they differ.
func stepInto(value *tensor.RawTensor, alpha float32, step *tensor.RawTensor) error {
	if step.DType() != value.DType() {
		cast, err := step.CastTo(value.DType())
		if err != nil {
			return errors.Wrap(err, "optim: cast step")
		}
		step = cast
	}
	return value.ScaledAdd(alpha, step)
}
