package cpu

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// Transpose permutes the dimensions of t.
// With no axes the dimension order is reversed (matrix transpose for 2D).
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}

	outShape := make(tensor.Shape, ndim)
	seen := make([]bool, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for shape %v", axes, shape))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(outShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: failed to create result tensor: %v", err))
	}

	inStrides := t.Strides()
	outStrides := outShape.ComputeStrides()
	size := t.DType().Size()
	src, dst := t.Data(), result.Data()

	for flat := 0; flat < result.NumElements(); flat++ {
		rem := flat
		srcOffset := 0
		for i := 0; i < ndim; i++ {
			coord := rem / outStrides[i]
			rem %= outStrides[i]
			srcOffset += coord * inStrides[axes[i]]
		}
		copy(dst[flat*size:(flat+1)*size], src[srcOffset*size:(srcOffset+1)*size])
	}

	return result
}
