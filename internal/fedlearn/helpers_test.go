package fedlearn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/tensor"
)

type cpuBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

const (
	testFeatures = 4
	testClasses  = 3
)

func newBackend() cpuBackend {
	return autodiff.New(cpu.New())
}

// newModel returns a one-hidden-layer MLP. Equal seeds give equal weights.
func newModel(backend cpuBackend, seed int64) *nn.Sequential[cpuBackend] {
	return nn.NewMLP(testFeatures, []int{5}, testClasses, backend, rand.New(rand.NewSource(seed)))
}

func newDataset(t *testing.T, samples int) *data.InMemory {
	t.Helper()
	ds, err := data.Blobs(data.BlobsConfig{
		Samples:  samples,
		Features: testFeatures,
		Classes:  testClasses,
	}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	return ds
}

func allIndices(n int) []int {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

func testArgs(bs, epochs int, momentum float32) config.Args {
	args := config.Default()
	args.LocalBS = bs
	args.LocalEp = epochs
	args.Momentum = momentum
	args.Seed = 3
	return args
}

// fullBatch returns the samples selected by idxs, in idxs order, as tensors.
func fullBatch(t *testing.T, ds data.Dataset, idxs []int, backend cpuBackend) (*tensor.Tensor[float32, cpuBackend], *tensor.Tensor[int32, cpuBackend]) {
	t.Helper()
	var inputs []float32
	var labels []int32
	for _, i := range idxs {
		x, y := ds.Get(i)
		inputs = append(inputs, x...)
		labels = append(labels, y)
	}
	x, err := tensor.FromSlice(inputs, tensor.Shape{len(idxs), testFeatures}, backend)
	require.NoError(t, err)
	y, err := tensor.FromSlice(labels, tensor.Shape{len(idxs)}, backend)
	require.NoError(t, err)
	return x, y
}

func paramData(model nn.Model[cpuBackend]) [][]float32 {
	var out [][]float32
	for _, p := range model.Parameters() {
		out = append(out, append([]float32(nil), p.Tensor().Data()...))
	}
	return out
}
