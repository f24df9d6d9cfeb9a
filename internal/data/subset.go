package data

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// Subset exposes the samples of a parent Dataset selected by an index list.
// Sample i of the subset is sample idxs[i] of the parent.
type Subset struct {
	parent Dataset
	idxs   []int
}

// NewSubset creates a subset. idxs is copied; every index must be in
// range of parent.
func NewSubset(parent Dataset, idxs []int) (*Subset, error) {
	n := parent.Len()
	for _, i := range idxs {
		if i < 0 || i >= n {
			return nil, errors.Errorf("index %d out of range for dataset of %d samples", i, n)
		}
	}
	return &Subset{parent: parent, idxs: slices.Clone(idxs)}, nil
}

// Len returns the number of selected samples.
func (s *Subset) Len() int {
	return len(s.idxs)
}

// Get returns the subset's i-th sample.
func (s *Subset) Get(i int) ([]float32, int32) {
	return s.parent.Get(s.idxs[i])
}

// SampleShape returns the parent's sample shape.
func (s *Subset) SampleShape() tensor.Shape {
	return s.parent.SampleShape()
}

// Indices returns a copy of the selected parent indices.
func (s *Subset) Indices() []int {
	return slices.Clone(s.idxs)
}
