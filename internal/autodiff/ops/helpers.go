package ops

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[1,4] + b[3,4] -> c[3,4]  (a was broadcast along dim 0)
//	Backward: grad_c[3,4] -> grad_a[1,4] (sum along dim 0)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}

	result := grad
	// NumPy broadcasting aligns shapes from the right: drop extra leading dims.
	for len(result.Shape()) > len(targetShape) && len(result.Shape()) > 1 {
		result = backend.SumDim(result, 0, false)
	}

	for i, dim := range targetShape {
		if i < len(result.Shape()) && dim == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}

	return result
}

// filled creates a float32 tensor of the given shape with every element set to v.
func filled(shape tensor.Shape, v float32, device tensor.Device) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(fmt.Sprintf("ops: failed to allocate gradient: %v", err))
	}
	data := raw.AsFloat32()
	for i := range data {
		data[i] = v
	}
	return raw
}
