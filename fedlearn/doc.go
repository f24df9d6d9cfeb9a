// Copyright 2025 PDCED Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package fedlearn provides the client-side local training step of a
// federated-learning simulation.
//
// # Overview
//
// This package contains:
//   - LocalUpdate: local SGD that reports gradients accumulated over all batches
//   - LocalUpdateMTL: local SGD with a multi-task penalty, reporting weights
//   - MTLPenalty / MTLPenaltyGrad: the multi-task regularizer on gonum matrices
//
// # Basic Usage
//
//	backend := fedlearn.NewCPUBackend()
//	model := fedlearn.NewMLP(784, []int{200}, 10, backend, rng)
//
//	trainer, err := fedlearn.NewLocalUpdate(fedlearn.DefaultArgs(), dataset, idxs, false, backend)
//	if err != nil {
//	    return err
//	}
//	result, err := trainer.Train(model, 0.01)
//	// result.Grads: one tensor per parameter, result.Loss: mean loss
//
// Train mutates the model in place. Callers must not train the same model
// from several goroutines at once.
package fedlearn
