// Package cpu implements the CPU backend. Matrix products go through gonum BLAS.
package cpu

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// CPUBackend implements tensor operations on the host CPU.
//
// Every operation allocates its result; inputs are never modified, so
// tensors captured by an autodiff tape keep their forward values.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float64) float64 { return x * y })
}

// binary applies fn element-wise over the broadcast shape of a and b.
func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, fn func(x, y float64) float64) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		out, ad, bd := result.AsFloat32(), a.AsFloat32(), b.AsFloat32()
		if !needsBroadcast {
			for i := range out {
				out[i] = float32(fn(float64(ad[i]), float64(bd[i])))
			}
			break
		}
		for i := range out {
			ai := tensor.BroadcastOffset(i, outShape, a.Shape())
			bi := tensor.BroadcastOffset(i, outShape, b.Shape())
			out[i] = float32(fn(float64(ad[ai]), float64(bd[bi])))
		}
	case tensor.Float64:
		out, ad, bd := result.AsFloat64(), a.AsFloat64(), b.AsFloat64()
		for i := range out {
			ai := tensor.BroadcastOffset(i, outShape, a.Shape())
			bi := tensor.BroadcastOffset(i, outShape, b.Shape())
			out[i] = fn(ad[ai], bd[bi])
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := x.Clone()
	switch x.DType() {
	case tensor.Float32:
		data := result.AsFloat32()
		for i := range data {
			data[i] *= scalar
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i := range data {
			data[i] *= float64(scalar)
		}
	default:
		panic(fmt.Sprintf("mulscalar: unsupported dtype %s", x.DType()))
	}
	return result
}

// Sum reduces all elements into a tensor of shape [1].
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(tensor.Shape{1}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum: failed to create result tensor: %v", err))
	}
	switch x.DType() {
	case tensor.Float32:
		var s float32
		for _, v := range x.AsFloat32() {
			s += v
		}
		result.AsFloat32()[0] = s
	case tensor.Float64:
		var s float64
		for _, v := range x.AsFloat64() {
			s += v
		}
		result.AsFloat64()[0] = s
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

// SumDim sums along dim. With keepDim the reduced dimension stays with size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape)
	}
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumdim: dim %d out of range for shape %v", dim, shape))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("sumdim: unsupported dtype %s", x.DType()))
	}

	outer := 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	inner := 1
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	size := shape[dim]

	outShape := shape.Clone()
	outShape[dim] = 1
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sumdim: failed to create result tensor: %v", err))
	}

	src, dst := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for k := 0; k < size; k++ {
			base := (o*size + k) * inner
			for i := 0; i < inner; i++ {
				dst[o*inner+i] += src[base+i]
			}
		}
	}

	if keepDim {
		return result
	}
	squeezed := append(shape[:dim:dim], shape[dim+1:]...)
	if len(squeezed) == 0 {
		squeezed = tensor.Shape{1}
	}
	return result.WithShape(squeezed)
}

// Reshape returns a copy of t with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.Clone().WithShape(newShape)
}
