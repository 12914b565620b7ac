package nn

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/tensor"
)

// StateDict flattens a layer's parameters into a name-to-tensor map. Names
// are "{index}.{name}" with the index taken from Parameters() order, so
// the layout is stable for a given model structure.
func StateDict(l Layer) map[string]*tensor.RawTensor {
	dict := make(map[string]*tensor.RawTensor)
	for i, p := range l.Parameters() {
		dict[fmt.Sprintf("%d.%s", i, p.Name())] = p.Value()
	}
	return dict
}

// LoadStateDict copies tensors from dict into the layer's parameters.
// Every parameter must have a matching entry with identical shape and
// dtype, and all parameter storage must be exclusively owned.
func LoadStateDict(l Layer, dict map[string]*tensor.RawTensor) error {
	for i, p := range l.Parameters() {
		name := fmt.Sprintf("%d.%s", i, p.Name())
		src, ok := dict[name]
		if !ok {
			return errors.Errorf("state dict: missing entry %q", name)
		}
		if !src.Shape().Equal(p.Shape()) {
			return errors.Errorf("state dict: %q shape mismatch %v vs %v", name, src.Shape(), p.Shape())
		}
		if src.DType() != p.DType() {
			return errors.Errorf("state dict: %q dtype mismatch %s vs %s", name, src.DType(), p.DType())
		}
		view, err := p.MakeViewMut()
		if err != nil {
			return errors.Wrapf(err, "state dict: %q", name)
		}
		copy(view.Value().Data(), src.Data())
	}
	return nil
}
