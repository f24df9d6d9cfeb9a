package fedlearn

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// GradResult is the output of LocalUpdate.Train.
type GradResult struct {
	// Grads holds one host-resident tensor per model parameter, in
	// Parameters() order: the sum of that parameter's gradient over every
	// mini-batch of every local epoch.
	Grads []*tensor.RawTensor
	// Loss is the mean over epochs of the mean batch loss of each epoch.
	Loss float64
}

// Norm returns the L2 norm of all gradients taken as one vector.
func (r *GradResult) Norm() float64 {
	return l2Norm(r.Grads)
}

// WeightResult is the output of the parameter-upload trainers.
type WeightResult struct {
	// Weights is a snapshot of every model parameter keyed by qualified name.
	Weights map[string]*tensor.RawTensor
	// Keys lists the names of Weights in parameter order.
	Keys []string
	// Loss is the mean over epochs of the mean batch loss of each epoch.
	Loss float64
}

// Ordered returns the snapshot tensors in parameter order.
func (r *WeightResult) Ordered() []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(r.Keys))
	for i, k := range r.Keys {
		out[i] = r.Weights[k]
	}
	return out
}

// Norm returns the L2 norm of all weights taken as one vector.
func (r *WeightResult) Norm() float64 {
	return l2Norm(r.Ordered())
}

func l2Norm(raws []*tensor.RawTensor) float64 {
	var sumSq float64
	for _, r := range raws {
		data := r.AsFloat32()
		n := float64(blas32.Nrm2(blas32.Vector{N: len(data), Inc: 1, Data: data}))
		sumSq += n * n
	}
	return math.Sqrt(sumSq)
}
