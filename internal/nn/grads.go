package nn

import (
	"github.com/oh-jka/PDCED/internal/tensor"
)

// AssignGrads stores each parameter's gradient from a tape gradient map.
//
// Parameters absent from grads (not on the computation path) are left with
// a nil gradient.
func AssignGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range params {
		g, ok := grads[p.Tensor().Raw()]
		if !ok {
			p.ZeroGrad()
			continue
		}
		p.SetGrad(tensor.New[float32, B](g, p.Tensor().Backend()))
	}
}

// ZeroGrad clears the gradient of every parameter.
func ZeroGrad[B tensor.Backend](params []*Parameter[B]) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Snapshot returns deep copies of a model's parameters keyed by qualified
// name. The copies are unaffected by later training.
func Snapshot[B tensor.Backend](model Model[B]) map[string]*tensor.RawTensor {
	named := model.NamedParameters()
	snap := make(map[string]*tensor.RawTensor, len(named))
	for _, np := range named {
		snap[np.Name] = np.Param.Tensor().Raw().Clone()
	}
	return snap
}

// NumParameters returns the total element count across params.
func NumParameters[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}
