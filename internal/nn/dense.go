package nn

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

// DenseConfig configures a Dense layer.
type DenseConfig struct {
	Inputs  int
	Outputs int
	Bias    bool
	DType   tensor.DataType
	Device  tensor.Device
	// Activation, when set, is applied to the layer output.
	Activation Forward
	// Rng seeds weight initialization. Required.
	Rng *rand.Rand
}

// Dense is a fully connected layer computing y = x @ W^T + b.
//
// The weight is stored [outputs, inputs], matching the transposed layout
// the forward matmul consumes.
type Dense struct {
	weight     *Parameter
	bias       *Parameter
	activation Forward
}

// NewDense creates a Dense layer with Xavier-uniform initialized weights
// and, when cfg.Bias is set, a zero-initialized bias.
func NewDense(cfg DenseConfig) (*Dense, error) {
	if cfg.Inputs <= 0 || cfg.Outputs <= 0 {
		return nil, errors.Errorf("dense: invalid dimensions [%d, %d]", cfg.Outputs, cfg.Inputs)
	}
	if cfg.Rng == nil {
		return nil, errors.New("dense: a random source is required for initialization")
	}
	w, err := XavierUniform(tensor.Shape{cfg.Outputs, cfg.Inputs}, cfg.DType, cfg.Device, cfg.Rng)
	if err != nil {
		return nil, errors.Wrap(err, "dense: weight init")
	}
	d := &Dense{weight: NewParameter("weight", w), activation: cfg.Activation}
	if cfg.Bias {
		b, err := tensor.Zeros(tensor.Shape{cfg.Outputs}, cfg.DType, cfg.Device)
		if err != nil {
			return nil, errors.Wrap(err, "dense: bias init")
		}
		d.bias = NewParameter("bias", b)
	}
	return d, nil
}

// Weight returns the weight parameter, shaped [outputs, inputs].
func (d *Dense) Weight() *Parameter {
	return d.weight
}

// Bias returns the bias parameter, or nil when the layer has none.
func (d *Dense) Bias() *Parameter {
	return d.bias
}

// Parameters implements Layer.
func (d *Dense) Parameters() []*Parameter {
	if d.bias == nil {
		return []*Parameter{d.weight}
	}
	return []*Parameter{d.weight, d.bias}
}

// Forward implements Forward.
func (d *Dense) Forward(g *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error) {
	weight := d.weight.ToVariable(g)
	var bias autodiff.Variable
	if d.bias != nil {
		bias = d.bias.ToVariable(g)
	}
	out, err := denseForward(input, weight, d.bias != nil, bias)
	if err != nil || d.activation == nil {
		return out, err
	}
	return d.activation.Forward(g, out)
}

// denseForward computes y = x @ W^T (+ b) and registers one edge per
// tracked operand.
func denseForward(input, weight autodiff.Variable, hasBias bool, bias autodiff.Variable) (autodiff.Variable, error) {
	x := input.Value()
	w := weight.Value()
	wt, err := w.Transpose2D()
	if err != nil {
		return autodiff.Variable{}, errors.Wrap(err, "dense")
	}
	y, err := x.MatMul(wt)
	if err != nil {
		return autodiff.Variable{}, errors.Wrap(err, "dense")
	}
	if hasBias {
		y, err = y.AddRowwise(bias.Value())
		if err != nil {
			return autodiff.Variable{}, errors.Wrap(err, "dense")
		}
	}

	b := autodiff.NewBuilder()
	if input.Tracked() {
		b.Edge(input.Node(), func(og *tensor.RawTensor) (*tensor.RawTensor, error) {
			// dx = og @ W
			return og.MatMul(w)
		})
	}
	if weight.Tracked() {
		b.Edge(weight.Node(), func(og *tensor.RawTensor) (*tensor.RawTensor, error) {
			// dW = og^T @ x
			ogt, err := og.Transpose2D()
			if err != nil {
				return nil, err
			}
			return ogt.MatMul(x)
		})
	}
	if hasBias && bias.Tracked() {
		b.Edge(bias.Node(), func(og *tensor.RawTensor) (*tensor.RawTensor, error) {
			// db = column sums of og
			return og.SumAxis0()
		})
	}
	return b.Build(y), nil
}
