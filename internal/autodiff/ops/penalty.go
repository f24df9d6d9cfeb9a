package ops

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// PenaltyOp represents a scalar penalty term R(x₁, …, xₙ) whose local
// gradients ∂R/∂xᵢ were evaluated during the forward pass.
//
// Backward scales each stored gradient by the upstream scalar gradient.
// This lets callers express a penalty computed outside the tape (for
// example with gonum) while still back-propagating into parameters.
type PenaltyOp struct {
	inputs []*tensor.RawTensor
	grads  []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewPenaltyOp creates a new PenaltyOp. grads[i] must match inputs[i] in shape.
func NewPenaltyOp(inputs, grads []*tensor.RawTensor, output *tensor.RawTensor) *PenaltyOp {
	if len(inputs) != len(grads) {
		panic(fmt.Sprintf("penalty: %d inputs but %d gradients", len(inputs), len(grads)))
	}
	for i := range inputs {
		if !inputs[i].Shape().Equal(grads[i].Shape()) {
			panic(fmt.Sprintf("penalty: gradient %d has shape %v, input has %v",
				i, grads[i].Shape(), inputs[i].Shape()))
		}
	}
	return &PenaltyOp{inputs: inputs, grads: grads, output: output}
}

// Backward returns outputGrad · ∂R/∂xᵢ for every input.
func (op *PenaltyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	scale := outputGrad.AsFloat32()[0]
	result := make([]*tensor.RawTensor, len(op.grads))
	for i, g := range op.grads {
		result[i] = backend.MulScalar(g, scale)
	}
	return result
}

// Inputs returns the penalised tensors.
func (op *PenaltyOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the scalar penalty.
func (op *PenaltyOp) Output() *tensor.RawTensor {
	return op.output
}
