package data

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// Batch is one mini-batch in host memory.
type Batch struct {
	Inputs []float32    // flattened, sample-major
	Labels []int32      // [batch]
	Shape  tensor.Shape // [batch, sample dims...]
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	return len(b.Labels)
}

// DataLoader splits a Dataset into mini-batches. The last batch may be
// smaller than the batch size. With shuffling, the order is redrawn from
// rng on every call to Epoch.
type DataLoader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	order     []int
}

// NewDataLoader creates a loader. rng is required when shuffle is set.
func NewDataLoader(ds Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, errors.New("shuffling data loader needs a random source")
	}
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	return &DataLoader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		order:     order,
	}, nil
}

// NumBatches returns the number of batches per epoch.
func (l *DataLoader) NumBatches() int {
	return (len(l.order) + l.batchSize - 1) / l.batchSize
}

// BatchSize returns the configured batch size.
func (l *DataLoader) BatchSize() int {
	return l.batchSize
}

// Epoch returns the batches of one pass over the dataset.
func (l *DataLoader) Epoch() []Batch {
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}

	sampleShape := l.ds.SampleShape()
	sampleSize := sampleShape.NumElements()
	batches := make([]Batch, 0, l.NumBatches())
	for start := 0; start < len(l.order); start += l.batchSize {
		end := min(start+l.batchSize, len(l.order))
		n := end - start
		b := Batch{
			Inputs: make([]float32, 0, n*sampleSize),
			Labels: make([]int32, 0, n),
			Shape:  append(tensor.Shape{n}, sampleShape...),
		}
		for _, idx := range l.order[start:end] {
			x, y := l.ds.Get(idx)
			b.Inputs = append(b.Inputs, x...)
			b.Labels = append(b.Labels, y)
		}
		batches = append(batches, b)
	}
	return batches
}
