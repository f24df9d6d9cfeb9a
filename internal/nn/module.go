// Package nn implements the neural network modules local training runs on.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Model interface: Module with stable, qualified parameter names
//   - Parameter: Trainable parameter with gradient slot
//   - Linear, ReLU, Flatten: Layers
//   - Sequential, MLP: Containers
//   - CrossEntropyLoss: Classification criterion
//
// Design follows PyTorch's nn.Module adapted for Go generics.
package nn

import (
	"github.com/oh-jka/PDCED/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewLinear(784, 128, backend, rng),
//	    nn.NewReLU[Backend](),
//	    nn.NewLinear(128, 10, backend, rng),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module in a
	// stable order. Modules without parameters return nil.
	Parameters() []*Parameter[B]

	// StateDict returns the live parameter tensors keyed by name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the parameters.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// NamedParameter pairs a parameter with its fully qualified name
// (for example "0.weight").
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *Parameter[B]
}

// Model is a Module whose parameters can be addressed by qualified name.
//
// NamedParameters must list the same parameters as Parameters, in the same
// order.
type Model[B tensor.Backend] interface {
	Module[B]
	NamedParameters() []NamedParameter[B]
}

// namedParameters returns qualified parameters for any module. Modules that
// do not implement Model fall back to the parameter's own name.
func namedParameters[B tensor.Backend](m Module[B]) []NamedParameter[B] {
	if model, ok := m.(Model[B]); ok {
		return model.NamedParameters()
	}
	params := m.Parameters()
	named := make([]NamedParameter[B], len(params))
	for i, p := range params {
		named[i] = NamedParameter[B]{Name: p.Name(), Param: p}
	}
	return named
}
