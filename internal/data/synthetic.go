package data

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// BlobsConfig configures a synthetic Gaussian-blob classification dataset.
type BlobsConfig struct {
	Samples  int
	Features int
	Classes  int
	// Spread is the standard deviation of samples around their class center.
	Spread float64
	// Separation scales the class centers, drawn from N(0, Separation²).
	Separation float64
}

// Blobs generates a classification dataset of isotropic Gaussian clusters,
// one per class. Labels cycle through the classes so every class has
// Samples/Classes (±1) members.
func Blobs(cfg BlobsConfig, rng *rand.Rand) (*InMemory, error) {
	if cfg.Samples <= 0 || cfg.Features <= 0 || cfg.Classes <= 0 {
		return nil, errors.Errorf("invalid blobs config %+v", cfg)
	}
	if cfg.Separation == 0 {
		cfg.Separation = 3
	}
	if cfg.Spread == 0 {
		cfg.Spread = 1
	}

	centers := make([]float64, cfg.Classes*cfg.Features)
	for i := range centers {
		centers[i] = rng.NormFloat64() * cfg.Separation
	}

	inputs := make([]float32, cfg.Samples*cfg.Features)
	labels := make([]int32, cfg.Samples)
	for i := range labels {
		c := i % cfg.Classes
		labels[i] = int32(c)
		for f := 0; f < cfg.Features; f++ {
			inputs[i*cfg.Features+f] = float32(centers[c*cfg.Features+f] + rng.NormFloat64()*cfg.Spread)
		}
	}
	return NewInMemory(inputs, labels, tensor.Shape{cfg.Features})
}
