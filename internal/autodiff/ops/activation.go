package ops

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// ReLUOp represents a ReLU activation: output = max(0, x).
//
// Backward pass:
//   - d(ReLU(x))/dx = 1 if x > 0, else 0
type ReLUOp struct {
	input  *tensor.RawTensor // x
	output *tensor.RawTensor // max(0, x)
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{
		input:  input,
		output: output,
	}
}

// ReLU computes max(0, x) into a new tensor.
func ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("relu: unsupported dtype %s (only float32 supported)", x.DType()))
	}
	result, err := tensor.NewRaw(x.Shape(), x.DType(), x.Device())
	if err != nil {
		panic(fmt.Sprintf("relu: failed to create result: %v", err))
	}
	out := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// Backward computes input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad, err := tensor.NewRaw(op.input.Shape(), tensor.Float32, op.input.Device())
	if err != nil {
		panic(fmt.Sprintf("relu: failed to create gradient: %v", err))
	}
	in, g, out := op.input.AsFloat32(), outputGrad.AsFloat32(), grad.AsFloat32()
	for i, v := range in {
		if v > 0 {
			out[i] = g[i]
		}
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensor [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor max(0, x).
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}
