// Copyright 2025 PDCED Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package fedlearn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/fedlearn"
	"github.com/oh-jka/PDCED/internal/nn"
)

// Backend is the compute backend local training runs on.
type Backend = fedlearn.Backend

// CPUBackend is the autodiff-enabled CPU backend.
type CPUBackend = autodiff.AutodiffBackend[*cpu.CPUBackend]

// NewCPUBackend creates an autodiff-enabled CPU backend.
func NewCPUBackend() *CPUBackend {
	return autodiff.New(cpu.New())
}

// Args holds the local training hyperparameters.
type Args = config.Args

// DefaultArgs returns the default hyperparameters.
func DefaultArgs() Args {
	return config.Default()
}

// LoadArgs reads hyperparameters from a YAML file.
func LoadArgs(path string) (Args, error) {
	return config.Load(path)
}

// Dataset is an indexed collection of (input, label) samples.
type Dataset = data.Dataset

// Model is a neural network with named parameters.
type Model[B Backend] = nn.Model[B]

// NewMLP builds a multi-layer perceptron classifier.
func NewMLP[B Backend](inFeatures int, hidden []int, classes int, backend B, rng *rand.Rand) *nn.Sequential[B] {
	return nn.NewMLP(inFeatures, hidden, classes, backend, rng)
}

// GradResult is the output of LocalUpdate.Train.
type GradResult = fedlearn.GradResult

// WeightResult is the output of the weight-reporting trainers.
type WeightResult = fedlearn.WeightResult

// LocalUpdate trains on a client shard and accumulates gradients.
type LocalUpdate[B Backend] = fedlearn.LocalUpdate[B]

// NewLocalUpdate creates a gradient-accumulating local trainer.
func NewLocalUpdate[B Backend](args Args, dataset Dataset, idxs []int, pretrain bool, backend B) (*LocalUpdate[B], error) {
	return fedlearn.NewLocalUpdate(args, dataset, idxs, pretrain, backend)
}

// LocalUpdateMTL trains on a client shard with a multi-task penalty.
type LocalUpdateMTL[B Backend] = fedlearn.LocalUpdateMTL[B]

// NewLocalUpdateMTL creates a multi-task local trainer.
func NewLocalUpdateMTL[B Backend](args Args, dataset Dataset, idxs []int, pretrain bool, backend B) (*LocalUpdateMTL[B], error) {
	return fedlearn.NewLocalUpdateMTL(args, dataset, idxs, pretrain, backend)
}

// MTLMomentum is the fixed SGD momentum of LocalUpdateMTL.
const MTLMomentum = fedlearn.MTLMomentum

// ErrNoBatches is returned when a Train call would process no mini-batch.
var ErrNoBatches = fedlearn.ErrNoBatches

// MTLPenalty evaluates the multi-task regularizer.
func MTLPenalty(w, omega *mat.Dense) float64 {
	return fedlearn.MTLPenalty(w, omega)
}
