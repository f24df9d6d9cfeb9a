package fedlearn

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MTLBlockSize is the number of rows of the global weight matrix coupled
// through omega at a time.
const MTLBlockSize = 4000

// PenaltyScale returns 10^-f with f = ⌊log10(rows)⌋ + 2, the factor the
// multi-task penalty is multiplied by.
func PenaltyScale(rows int) float64 {
	// Digit count avoids floating-point log10 at exact powers of ten.
	f := len(strconv.Itoa(rows)) + 1
	return math.Pow(10, -float64(f))
}

// MTLPenalty evaluates the multi-task regularizer
//
//	R(W) = s · (‖W‖²_F + Σ_i tr(X_i Ω X_iᵀ)),  X_i = W[i·k:(i+1)·k, :]
//
// over the ⌊rows/k⌋ full row blocks of w (k = MTLBlockSize), with
// s = PenaltyScale(rows). Rows past the last full block only enter the norm.
func MTLPenalty(w, omega *mat.Dense) float64 {
	rows, cols := w.Dims()
	norm := mat.Norm(w, 2)
	reg := norm * norm

	for i := 0; i < rows/MTLBlockSize; i++ {
		x := w.Slice(i*MTLBlockSize, (i+1)*MTLBlockSize, 0, cols)
		// tr(X Ω Xᵀ) = Σ (X Ω) ∘ X
		var xo, h mat.Dense
		xo.Mul(x, omega)
		h.MulElem(&xo, x)
		reg += mat.Sum(&h)
	}
	return PenaltyScale(rows) * reg
}

// MTLPenaltyGrad returns ∂R/∂W[:, idx]:
//
//	s · (2·W[:, idx] + Σ_i (X_i (Ω + Ωᵀ))[:, idx])
//
// Only column idx is returned: it is the one holding the local model.
func MTLPenaltyGrad(w, omega *mat.Dense, idx int) []float64 {
	rows, cols := w.Dims()
	grad := mat.Col(nil, idx, w)
	floats.Scale(2, grad)

	full := (rows / MTLBlockSize) * MTLBlockSize
	if full > 0 {
		var sym mat.Dense
		sym.Add(omega, omega.T())
		v := mat.NewVecDense(cols, mat.Col(nil, idx, &sym))
		var coupled mat.VecDense
		coupled.MulVec(w.Slice(0, full, 0, cols), v)
		for r := 0; r < full; r++ {
			grad[r] += coupled.AtVec(r)
		}
	}

	floats.Scale(PenaltyScale(rows), grad)
	return grad
}
