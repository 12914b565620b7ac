package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
)

func fromValues(t *testing.T, values []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32s(values, shape, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	return r
}

func TestNewParameter(t *testing.T) {
	p := NewParameter("weight", fromValues(t, []float32{1, 2}, tensor.Shape{2}))

	assert.Equal(t, "weight", p.Name())
	assert.NotZero(t, p.Key())
	assert.Equal(t, tensor.Shape{2}, p.Shape())
	assert.Equal(t, tensor.Float32, p.DType())
}

func TestParameter_KeysUnique(t *testing.T) {
	a := NewParameter("a", fromValues(t, []float32{1}, tensor.Shape{1}))
	b := NewParameter("b", fromValues(t, []float32{1}, tensor.Shape{1}))

	assert.NotEqual(t, a.Key(), b.Key())
}

func TestToVariable_NilGraphUntracked(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))

	v := p.ToVariable(nil)
	assert.False(t, v.Tracked())
	assert.Same(t, p.Value(), v.Value())
}

func TestToVariable_TrainingOffUntracked(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))
	p.SetTraining(false)

	g := autodiff.NewGraph()
	v := p.ToVariable(g)
	assert.False(t, v.Tracked())
	assert.Equal(t, 0, g.NumNodes())
}

func TestToVariable_TrackedWithParameterKey(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	v := p.ToVariable(g)
	assert.True(t, v.Tracked())
	assert.Equal(t, p.Key(), v.Key())
	g.Drop()
}

func TestToVariable_CachedPerGraph(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	v1 := p.ToVariable(g)
	v2 := p.ToVariable(g)
	// repeated uses in one pass share a single leaf node
	assert.Same(t, v1.Node(), v2.Node())
	assert.Equal(t, 1, g.NumNodes())
	g.Drop()

	g2 := autodiff.NewGraph()
	v3 := p.ToVariable(g2)
	assert.NotSame(t, v1.Node(), v3.Node())
	g2.Drop()
}

func TestMakeViewMut_FailsDuringLivePass(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	p.ToVariable(g)

	_, err := p.MakeViewMut()
	assert.ErrorContains(t, err, `parameter "w"`)

	g.Drop()
	view, err := p.MakeViewMut()
	require.NoError(t, err)
	assert.Equal(t, p.Key(), view.Key())
}

func TestMakeViewMut_AvailableAfterBackward(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{2}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	v := p.ToVariable(g)
	loss, err := v.Sum()
	require.NoError(t, err)

	grads, err := g.Backward(loss)
	require.NoError(t, err)
	assert.Contains(t, grads, p.Key())

	view, err := p.MakeViewMut()
	require.NoError(t, err)
	require.NoError(t, view.Value().ScaledAdd(-1, grads[p.Key()]))
	assert.Equal(t, []float32{1}, p.Value().Float32s())
}

// One parameter feeding two ops produces one summed gradient entry.
func TestParameter_WeightSharing(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{3}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	v1 := p.ToVariable(g)
	v2 := p.ToVariable(g)

	prod, err := v1.Mul(v2)
	require.NoError(t, err)
	loss, err := prod.Sum()
	require.NoError(t, err)

	grads, err := g.Backward(loss)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	// d(w*w)/dw = 2w
	assert.Equal(t, []float32{6}, grads[p.Key()].Float32s())
}

func TestCastMut_PreservesKey(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1.5}, tensor.Shape{1}))
	key := p.Key()

	require.NoError(t, p.CastMut(tensor.BFloat16))
	assert.Equal(t, key, p.Key())
	assert.Equal(t, tensor.BFloat16, p.DType())
	assert.Equal(t, []float32{1.5}, p.Value().Float32s())
}

func TestCastMut_FailsDuringLivePass(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1}, tensor.Shape{1}))

	g := autodiff.NewGraph()
	p.ToVariable(g)
	assert.Error(t, p.CastMut(tensor.BFloat16))
	g.Drop()
}

func TestToDeviceMut(t *testing.T) {
	p := NewParameter("w", fromValues(t, []float32{1, 2}, tensor.Shape{2}))
	key := p.Key()

	require.NoError(t, p.ToDeviceMut(tensor.Accelerator))
	assert.Equal(t, key, p.Key())
	assert.Equal(t, tensor.Accelerator, p.Value().Device())
	assert.Equal(t, []float32{1, 2}, p.Value().Float32s())
}
