package autodiff

import (
	"github.com/floe-ml/floe/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Gradients maps gradient-lookup identities (see NewKey) to accumulated
// gradient values. Entries exist only for tracked leaves that received at
// least one contribution; values are always Float32 regardless of the
// leaf's dtype; partial gradients are upcast before summation so the
// result does not depend on the order bf16 roundings happen in.
type Gradients map[uint64]*tensor.RawTensor

// Backward walks the graph in reverse creation order, accumulating
// gradients of the scalar loss with respect to every tracked leaf.
//
// The walk invokes each edge's gradient transform exactly once with the
// node's accumulated output gradient. Nodes that never receive a gradient
// (branches the loss does not depend on) are skipped entirely: their edges
// are not invoked and no zero entries appear in the result.
//
// The graph is consumed: node storage and retained values are released
// before returning, and a second call fails with an explicit error.
func (g *Graph) Backward(loss Variable) (Gradients, error) {
	if loss.node == nil {
		return Gradients{}, nil
	}
	if loss.node.graph != g {
		return nil, errors.New("backward: variable belongs to a different graph scope")
	}
	if g.consumed {
		return nil, errors.New("backward: graph already consumed; one Backward per forward pass")
	}
	if !loss.value.Shape().IsScalar() {
		return nil, errors.Errorf("backward: loss must be a scalar, got shape %s", loss.value.Shape())
	}
	g.consumed = true
	defer g.Drop()

	// Accumulated output gradients per node id, always Float32. Nodes after
	// the loss node cannot contribute to it and are never visited.
	accum := make([]*tensor.RawTensor, loss.node.id+1)
	seed, err := tensor.Ones(tensor.Shape{}, tensor.Float32, loss.value.Device())
	if err != nil {
		return nil, err
	}
	accum[loss.node.id] = seed

	grads := make(Gradients)
	for id := loss.node.id; id >= 0; id-- {
		outputGrad := accum[id]
		accum[id] = nil
		if outputGrad == nil {
			// Unreachable from the loss; skip without invoking edges.
			continue
		}
		node := g.nodes[id]

		if node.key != 0 {
			if existing, ok := grads[node.key]; ok {
				// Same identity reached through two leaf nodes; sum.
				if err := existing.ScaledAdd(1, outputGrad); err != nil {
					return nil, errors.WithMessage(err, "backward: accumulating leaf gradient")
				}
			} else {
				grads[node.key] = outputGrad
			}
			continue
		}

		if len(node.edges) == 0 {
			continue
		}
		// Hand the gradient to the op's transforms in the op's own dtype.
		opGrad := outputGrad
		if node.dtype != tensor.Float32 {
			opGrad, err = outputGrad.CastTo(node.dtype)
			if err != nil {
				return nil, errors.WithMessage(err, "backward: casting output gradient")
			}
		}
		for _, e := range node.edges {
			grad, err := e.gradFn(opGrad)
			if err != nil {
				return nil, errors.WithMessage(err, "backward: gradient transform failed")
			}
			if grad == nil {
				continue
			}
			if !grad.Shape().Equal(e.pred.shape) {
				// A transform produced a gradient that does not fit its
				// input: a bug in the op, not a recoverable condition.
				panic(errors.Errorf(
					"backward: gradient shape %s does not match input shape %s (node %d -> %d)",
					grad.Shape(), e.pred.shape, id, e.pred.id))
			}
			grad32, err := grad.CastTo(tensor.Float32)
			if err != nil {
				return nil, errors.WithMessage(err, "backward: upcasting partial gradient")
			}
			if accum[e.pred.id] == nil {
				accum[e.pred.id] = grad32
			} else if err := accum[e.pred.id].ScaledAdd(1, grad32); err != nil {
				return nil, errors.WithMessage(err, "backward: accumulating gradient")
			}
		}
	}

	klog.V(2).Infof("backward: walked %d nodes, %d gradient entries", loss.node.id+1, len(grads))
	return grads, nil
}
