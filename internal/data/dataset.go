// Package data provides indexed datasets, client shards and mini-batch loading.
package data

import (
	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// Dataset is an indexed collection of (input, label) samples.
//
// Get returns the flattened input of sample i (len == SampleShape().NumElements())
// and its class label. The returned slice must not be modified.
type Dataset interface {
	Len() int
	Get(i int) ([]float32, int32)
	SampleShape() tensor.Shape
}

// InMemory is a Dataset backed by contiguous slices.
type InMemory struct {
	inputs      []float32
	labels      []int32
	sampleShape tensor.Shape
	sampleSize  int
}

// NewInMemory creates a dataset over inputs laid out sample-major. The
// slices are used without copying.
func NewInMemory(inputs []float32, labels []int32, sampleShape tensor.Shape) (*InMemory, error) {
	if err := sampleShape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sample shape")
	}
	size := sampleShape.NumElements()
	if size == 0 {
		return nil, errors.New("sample shape has no elements")
	}
	if len(inputs) != size*len(labels) {
		return nil, errors.Errorf("%d input values for %d samples of shape %v", len(inputs), len(labels), sampleShape)
	}
	return &InMemory{
		inputs:      inputs,
		labels:      labels,
		sampleShape: sampleShape.Clone(),
		sampleSize:  size,
	}, nil
}

// Len returns the number of samples.
func (d *InMemory) Len() int {
	return len(d.labels)
}

// Get returns sample i.
func (d *InMemory) Get(i int) ([]float32, int32) {
	return d.inputs[i*d.sampleSize : (i+1)*d.sampleSize], d.labels[i]
}

// SampleShape returns the shape of one input.
func (d *InMemory) SampleShape() tensor.Shape {
	return d.sampleShape
}

// Labels returns the label of every sample in ds, in index order.
func Labels(ds Dataset) []int32 {
	labels := make([]int32, ds.Len())
	for i := range labels {
		_, labels[i] = ds.Get(i)
	}
	return labels
}
