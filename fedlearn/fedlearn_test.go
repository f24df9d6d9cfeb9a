// Copyright 2025 PDCED Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package fedlearn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/oh-jka/PDCED/fedlearn"
	"github.com/oh-jka/PDCED/internal/data"
)

func blobs(t *testing.T) fedlearn.Dataset {
	t.Helper()
	ds, err := data.Blobs(data.BlobsConfig{Samples: 40, Features: 6, Classes: 2}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return ds
}

func TestLocalUpdate_ReducesLoss(t *testing.T) {
	backend := fedlearn.NewCPUBackend()
	ds := blobs(t)
	model := fedlearn.NewMLP(6, []int{8}, 2, backend, rand.New(rand.NewSource(2)))

	args := fedlearn.DefaultArgs()
	args.LocalBS = 8
	idxs := make([]int, ds.Len())
	for i := range idxs {
		idxs[i] = i
	}

	trainer, err := fedlearn.NewLocalUpdate(args, ds, idxs, false, backend)
	require.NoError(t, err)

	first, err := trainer.Train(model, 0.1)
	require.NoError(t, err)
	require.Len(t, first.Grads, len(model.Parameters()))
	assert.Positive(t, first.Norm())

	var last *fedlearn.GradResult
	for range 10 {
		last, err = trainer.Train(model, 0.1)
		require.NoError(t, err)
	}
	assert.Less(t, last.Loss, first.Loss)
}

func TestLocalUpdateMTL_Weights(t *testing.T) {
	backend := fedlearn.NewCPUBackend()
	ds := blobs(t)
	model := fedlearn.NewMLP(6, nil, 2, backend, rand.New(rand.NewSource(2)))

	var keys []string
	var rows int
	for _, np := range model.NamedParameters() {
		keys = append(keys, np.Name)
		rows += np.Param.Tensor().NumElements()
	}

	trainer, err := fedlearn.NewLocalUpdateMTL(fedlearn.DefaultArgs(), ds, []int{0, 1, 2, 3, 4, 5}, false, backend)
	require.NoError(t, err)
	omega := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	res, err := trainer.Train(model, 0.1, omega, mat.NewDense(rows, 2, nil), 1, keys)
	require.NoError(t, err)
	assert.Equal(t, keys, res.Keys)
	assert.Positive(t, res.Loss)
}

func TestMTLPenalty(t *testing.T) {
	w := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.InDelta(t, 0.3, fedlearn.MTLPenalty(w, mat.NewDense(2, 2, nil)), 1e-12)
}

func TestNoBatches(t *testing.T) {
	backend := fedlearn.NewCPUBackend()
	model := fedlearn.NewMLP(6, nil, 2, backend, rand.New(rand.NewSource(2)))

	trainer, err := fedlearn.NewLocalUpdate(fedlearn.DefaultArgs(), blobs(t), nil, false, backend)
	require.NoError(t, err)
	_, err = trainer.Train(model, 0.1)
	assert.ErrorIs(t, err, fedlearn.ErrNoBatches)
}
