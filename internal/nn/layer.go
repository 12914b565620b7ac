package nn

import (
	"github.com/floe-ml/floe/internal/autodiff"
)

// Forward is the forward-pass interface every layer implements.
//
// The graph scope is passed explicitly: a nil graph runs the layer in
// inference mode, where parameters surface as untracked leaves and no node
// or edge storage is allocated.
type Forward interface {
	Forward(g *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error)
}

// Layer is a Forward with trainable parameters.
type Layer interface {
	Forward
	// Parameters returns the layer's trainable parameters, in a stable order.
	Parameters() []*Parameter
}

// ParameterViews collects mutable views for all parameters of a layer,
// for handing to an optimizer after a backward pass.
func ParameterViews(l Layer) ([]*ParameterView, error) {
	params := l.Parameters()
	views := make([]*ParameterView, 0, len(params))
	for _, p := range params {
		view, err := p.MakeViewMut()
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// SetTraining toggles gradient tracking for every parameter of a layer.
func SetTraining(l Layer, training bool) {
	for _, p := range l.Parameters() {
		p.SetTraining(training)
	}
}

// Identity passes its input through unchanged.
type Identity struct{}

// Forward implements Forward.
func (Identity) Forward(_ *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error) {
	return input, nil
}

// Parameters implements Layer.
func (Identity) Parameters() []*Parameter {
	return nil
}

// Flatten reshapes its input to 2D [batch, features].
type Flatten struct{}

// Forward implements Forward.
func (Flatten) Forward(_ *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error) {
	return input.Flatten()
}

// Parameters implements Layer.
func (Flatten) Parameters() []*Parameter {
	return nil
}

// Sequential chains layers, feeding each layer's output to the next.
type Sequential struct {
	layers []Layer
}

// NewSequential creates a sequential container from the given layers.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Forward implements Forward.
func (s *Sequential) Forward(g *autodiff.Graph, input autodiff.Variable) (autodiff.Variable, error) {
	var err error
	for _, l := range s.layers {
		input, err = l.Forward(g, input)
		if err != nil {
			return autodiff.Variable{}, err
		}
	}
	return input, nil
}

// Parameters implements Layer.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}
