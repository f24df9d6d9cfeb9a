package nn

import (
	"math/rand"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// NewMLP builds a multi-layer perceptron classifier:
//
//	Flatten -> Linear(in, h0) -> ReLU -> ... -> Linear(h_last, classes)
//
// With no hidden layers the model is a single Linear (softmax regression).
func NewMLP[B tensor.Backend](inFeatures int, hidden []int, classes int, backend B, rng *rand.Rand) *Sequential[B] {
	model := NewSequential[B](NewFlatten[B]())
	prev := inFeatures
	for _, h := range hidden {
		model.Add(NewLinear(prev, h, backend, rng))
		model.Add(NewReLU[B]())
		prev = h
	}
	model.Add(NewLinear(prev, classes, backend, rng))
	return model
}
