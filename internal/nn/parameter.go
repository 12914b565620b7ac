// Package nn provides neural network layers built on the autodiff engine.
package nn

import (
	"github.com/floe-ml/floe/internal/autodiff"
	"github.com/floe-ml/floe/internal/tensor"
	"github.com/pkg/errors"
)

// Parameter is a trainable value with a stable gradient-lookup identity.
//
// The identity (Key) is a process-unique counter assigned at construction.
// It survives precision casts and device moves, and it is what the backward
// pass keys accumulated gradients by: every use of the parameter in one
// forward pass funnels into the single map entry for this key.
type Parameter struct {
	name     string
	key      uint64
	value    *tensor.RawTensor
	training bool

	// One leaf node per graph: reusing the node across repeated uses in a
	// pass (weight sharing) makes fan-in gradients sum by construction.
	cachedGraph *autodiff.Graph
	cachedVar   autodiff.Variable
}

// NewParameter creates a trainable parameter wrapping the given value.
// The value's storage is owned by the parameter from here on.
func NewParameter(name string, value *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:     name,
		key:      autodiff.NewKey(),
		value:    value,
		training: true,
	}
}

// Name returns the parameter name (e.g. "dense1.weight").
func (p *Parameter) Name() string {
	return p.name
}

// Key returns the gradient-lookup identity.
func (p *Parameter) Key() uint64 {
	return p.key
}

// Value returns the canonical stored value. Read-only by convention;
// mutation goes through MakeViewMut.
func (p *Parameter) Value() *tensor.RawTensor {
	return p.value
}

// Shape returns the parameter's shape.
func (p *Parameter) Shape() tensor.Shape {
	return p.value.Shape()
}

// DType returns the parameter's dtype.
func (p *Parameter) DType() tensor.DataType {
	return p.value.DType()
}

// SetTraining toggles gradient tracking for this parameter.
func (p *Parameter) SetTraining(training bool) {
	p.training = training
	p.cachedGraph = nil
	p.cachedVar = autodiff.Variable{}
}

// ToVariable produces a Variable sharing the parameter's current value.
//
// Under training with a live graph the variable is a tracked leaf whose
// gradient resolves to this parameter's key; the shared value is retained
// by the graph and released when the pass is consumed or dropped. Without
// a graph, or with training off, the result is an untracked leaf and no
// graph bookkeeping happens.
func (p *Parameter) ToVariable(g *autodiff.Graph) autodiff.Variable {
	if g == nil || !p.training {
		return autodiff.FromTensor(p.value)
	}
	if p.cachedGraph == g {
		return p.cachedVar
	}
	shared := p.value.Clone()
	g.Retain(shared)
	v := g.Leaf(shared, p.key)
	p.cachedGraph = g
	p.cachedVar = v
	return v
}

// ParameterView is temporary exclusive mutable access to a parameter's
// storage, as handed to an optimizer.
type ParameterView struct {
	param *Parameter
	value *tensor.RawTensor
}

// MakeViewMut returns a mutable view over the parameter's storage.
//
// Fails if the storage is currently shared, typically because a forward
// pass still holds the value through a live graph. The caller should drop
// the graph (or let Backward consume it) rather than retry.
func (p *Parameter) MakeViewMut() (*ParameterView, error) {
	view, err := p.value.MakeViewMut()
	if err != nil {
		return nil, errors.WithMessagef(err, "parameter %q", p.name)
	}
	return &ParameterView{param: p, value: view}, nil
}

// Key returns the parameter's gradient-lookup identity.
func (pv *ParameterView) Key() uint64 {
	return pv.param.key
}

// Name returns the parameter name.
func (pv *ParameterView) Name() string {
	return pv.param.name
}

// Value returns the exclusively borrowed storage.
func (pv *ParameterView) Value() *tensor.RawTensor {
	return pv.value
}

// CastMut changes the parameter's precision in place.
//
// Must be called between training steps: a live graph still referencing the
// old value makes the storage shared, which fails the exclusivity check.
// The identity key is preserved, so gradient lookups stay consistent.
func (p *Parameter) CastMut(dtype tensor.DataType) error {
	if _, err := p.value.MakeViewMut(); err != nil {
		return errors.WithMessagef(err, "parameter %q: cast", p.name)
	}
	cast, err := p.value.CastTo(dtype)
	if err != nil {
		return errors.WithMessagef(err, "parameter %q: cast", p.name)
	}
	p.value = cast
	p.cachedGraph = nil
	p.cachedVar = autodiff.Variable{}
	return nil
}

// ToDeviceMut moves the parameter's storage to another device in place.
// Same discipline as CastMut: between training steps only.
func (p *Parameter) ToDeviceMut(device tensor.Device) error {
	if _, err := p.value.MakeViewMut(); err != nil {
		return errors.WithMessagef(err, "parameter %q: to_device", p.name)
	}
	moved, err := p.value.ToDevice(device)
	if err != nil {
		return errors.WithMessagef(err, "parameter %q: to_device", p.name)
	}
	p.value = moved
	p.cachedGraph = nil
	p.cachedVar = autodiff.Variable{}
	return nil
}
