package nn

import (
	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

// Relu applies the rectified linear unit elementwise.
type Relu struct{}

// Forward implements Forward.
func (Relu) Forward(_ *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error) {
	x := input.Value()
	y, err := x.Relu()
	if err != nil {
		return autodiff.Variable{}, err
	}
	b := autodiff.NewBuilder()
	if input.Tracked() {
		b.Edge(input.Node(), func(og *tensor.RawTensor) (*tensor.RawTensor, error) {
			return tensor.ReluBackward(x, og)
		})
	}
	return b.Build(y), nil
}

// Parameters implements Layer.
func (Relu) Parameters() []*Parameter {
	return nil
}
