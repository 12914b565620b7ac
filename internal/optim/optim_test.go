package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/tensor"
)

func newParam(t *testing.T, values []float32, dtype tensor.DataType) *nn.Parameter {
	t.Helper()
	v, err := tensor.FromFloat32s(values, tensor.Shape{len(values)}, dtype, tensor.Host)
	require.NoError(t, err)
	return nn.NewParameter("p", v)
}

func grad(t *testing.T, values []float32) *tensor.RawTensor {
	t.Helper()
	g, err := tensor.FromFloat32s(values, tensor.Shape{len(values)}, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	return g
}

func view(t *testing.T, p *nn.Parameter) *nn.ParameterView {
	t.Helper()
	v, err := p.MakeViewMut()
	require.NoError(t, err)
	return v
}

func TestSGD_SimpleUpdate(t *testing.T) {
	p := newParam(t, []float32{2, 4}, tensor.Float32)
	sgd := NewSGD(SGDConfig{LR: 0.5})

	grads := autodiff.Gradients{p.Key(): grad(t, []float32{1, 2})}
	require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, grads))

	assert.InDeltaSlice(t, []float32{1.5, 3}, p.Value().Float32s(), 1e-6)
}

func TestSGD_DefaultLR(t *testing.T) {
	sgd := NewSGD(SGDConfig{})
	assert.Equal(t, float32(0.01), sgd.LR())

	sgd.SetLR(0.1)
	assert.Equal(t, float32(0.1), sgd.LR())
}

func TestSGD_SkipsParamsWithoutGrad(t *testing.T) {
	p := newParam(t, []float32{1}, tensor.Float32)
	sgd := NewSGD(SGDConfig{LR: 1})

	require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, autodiff.Gradients{}))
	assert.Equal(t, []float32{1}, p.Value().Float32s())
}

func TestSGD_Momentum(t *testing.T) {
	p := newParam(t, []float32{0}, tensor.Float32)
	sgd := NewSGD(SGDConfig{LR: 1, Momentum: 0.5})

	grads := autodiff.Gradients{p.Key(): grad(t, []float32{1})}

	// step 1: velocity = 1, param = -1
	require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, grads))
	assert.InDeltaSlice(t, []float32{-1}, p.Value().Float32s(), 1e-6)

	// step 2: velocity = 0.5*1 + 1 = 1.5, param = -2.5
	grads = autodiff.Gradients{p.Key(): grad(t, []float32{1})}
	require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, grads))
	assert.InDeltaSlice(t, []float32{-2.5}, p.Value().Float32s(), 1e-6)
}

func TestSGD_BFloat16ParamFloat32Grad(t *testing.T) {
	p := newParam(t, []float32{2}, tensor.BFloat16)
	sgd := NewSGD(SGDConfig{LR: 0.5})

	grads := autodiff.Gradients{p.Key(): grad(t, []float32{2})}
	require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, grads))

	assert.Equal(t, tensor.BFloat16, p.DType())
	assert.InDeltaSlice(t, []float32{1}, p.Value().Float32s(), 1e-2)
}

func TestSGD_EndToEnd(t *testing.T) {
	// loss = sum(w * x) with constant x, so each step moves w by -lr*x
	p := newParam(t, []float32{5}, tensor.Float32)
	sgd := NewSGD(SGDConfig{LR: 0.1})

	for i := 0; i < 3; i++ {
		g := autodiff.NewGraph()
		w := p.ToVariable(g)
		x := autodiff.FromTensor(grad(t, []float32{2}))
		prod, err := w.Mul(x)
		require.NoError(t, err)
		loss, err := prod.Sum()
		require.NoError(t, err)

		grads, err := g.Backward(loss)
		require.NoError(t, err)

		require.NoError(t, sgd.Update([]*nn.ParameterView{view(t, p)}, grads))
	}
	assert.InDeltaSlice(t, []float32{4.4}, p.Value().Float32s(), 1e-5)
}

func TestAdam_Defaults(t *testing.T) {
	adam := NewAdam(AdamConfig{})
	assert.Equal(t, float32(0.001), adam.LR())
}

func TestAdam_FirstStepIsLRSized(t *testing.T) {
	// bias correction makes the first step approximately lr * sign(grad)
	p := newParam(t, []float32{1, 1}, tensor.Float32)
	adam := NewAdam(AdamConfig{LR: 0.1})

	grads := autodiff.Gradients{p.Key(): grad(t, []float32{10, -0.5})}
	require.NoError(t, adam.Update([]*nn.ParameterView{view(t, p)}, grads))

	assert.InDeltaSlice(t, []float32{0.9, 1.1}, p.Value().Float32s(), 1e-3)
}

func TestAdam_ConvergesTowardMinimum(t *testing.T) {
	p := newParam(t, []float32{3}, tensor.Float32)
	adam := NewAdam(AdamConfig{LR: 0.1})

	// loss = w^2, grad = 2w
	for i := 0; i < 200; i++ {
		g := autodiff.NewGraph()
		w := p.ToVariable(g)
		sq, err := w.Mul(w)
		require.NoError(t, err)
		loss, err := sq.Sum()
		require.NoError(t, err)
		grads, err := g.Backward(loss)
		require.NoError(t, err)
		require.NoError(t, adam.Update([]*nn.ParameterView{view(t, p)}, grads))
	}
	assert.InDelta(t, 0, p.Value().Float32s()[0], 0.2)
}
