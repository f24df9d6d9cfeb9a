package nn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, backend, rng),
//	    nn.NewReLU[Backend](),
//	    nn.NewLinear(128, 10, backend, rng),
//	)
//
//	output := model.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules, in module order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// NamedParameters returns all parameters prefixed with their module index
// ("0.weight", "0.bias", "2.weight", ...), in the order of Parameters.
func (s *Sequential[B]) NamedParameters() []NamedParameter[B] {
	var named []NamedParameter[B]
	for i, module := range s.modules {
		for _, np := range namedParameters(module) {
			named = append(named, NamedParameter[B]{
				Name:  fmt.Sprintf("%d.%s", i, np.Name),
				Param: np.Param,
			})
		}
	}
	return named
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// StateDict returns a map of qualified parameter names to live raw tensors.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, np := range s.NamedParameters() {
		stateDict[np.Name] = np.Param.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary keyed by
// qualified names.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		prefix := fmt.Sprintf("%d.", i)
		moduleStateDict := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				moduleStateDict[name] = raw
			}
		}
		if len(module.Parameters()) == 0 {
			continue
		}
		if err := module.LoadStateDict(moduleStateDict); err != nil {
			return errors.Wrapf(err, "failed to load module %d", i)
		}
	}
	return nil
}
