package fedlearn

import (
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/tensor"
)

// gradAccumulator sums parameter gradients across mini-batches. Its buffers
// are allocated on the first Add and never alias the model's gradients.
type gradAccumulator[B tensor.Backend] struct {
	sums []*tensor.RawTensor
}

// add folds the current gradient of every parameter into the running sums.
// A parameter without a gradient contributes zeros.
func (acc *gradAccumulator[B]) add(params []*nn.Parameter[B]) {
	if acc.sums == nil {
		acc.sums = make([]*tensor.RawTensor, len(params))
		for i, p := range params {
			if g := p.Grad(); g != nil {
				acc.sums[i] = g.Detach().Raw()
				continue
			}
			zeros, err := tensor.NewRaw(p.Tensor().Shape(), tensor.Float32, p.Tensor().Device())
			if err != nil {
				panic(err)
			}
			acc.sums[i] = zeros
		}
		return
	}

	for i, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		src := g.Data()
		dst := acc.sums[i].AsFloat32()
		blas32.Axpy(1,
			blas32.Vector{N: len(src), Inc: 1, Data: src},
			blas32.Vector{N: len(dst), Inc: 1, Data: dst})
	}
}
