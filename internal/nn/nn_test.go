package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newMLP(seed int64) (*nn.Sequential[Backend], Backend) {
	backend := autodiff.New(cpu.New())
	return nn.NewMLP(4, []int{8, 6}, 3, backend, rand.New(rand.NewSource(seed))), backend
}

func TestParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	data, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	param := nn.NewParameter("p", data)
	assert.Equal(t, "p", param.Name())
	assert.Same(t, data, param.Tensor())
	assert.Nil(t, param.Grad())

	grad, err := tensor.FromSlice([]float32{0.1, 0.2, 0.3}, tensor.Shape{3}, backend)
	require.NoError(t, err)
	param.SetGrad(grad)
	assert.Same(t, grad, param.Grad())

	param.ZeroGrad()
	assert.Nil(t, param.Grad())
}

func TestLinear_Forward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear(2, 3, backend, rand.New(rand.NewSource(1)))
	require.NoError(t, layer.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": mustRaw(t, []float32{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}, backend),
		"bias":   mustRaw(t, []float32{0.5, 0, -0.5}, tensor.Shape{3}, backend),
	}))

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	out := layer.Forward(x)

	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.InDeltaSlice(t, []float32{1.5, 2, 2.5, 3.5, 4, 6.5}, out.Data(), 1e-6)
}

func TestLinear_Init(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear(16, 8, backend, rand.New(rand.NewSource(1)))

	for _, v := range layer.Bias().Tensor().Data() {
		require.Zero(t, v)
	}
	var nonZero int
	for _, v := range layer.Weight().Tensor().Data() {
		if v != 0 {
			nonZero++
		}
	}
	assert.Positive(t, nonZero)
}

func TestMLP_NamedParameters(t *testing.T) {
	model, _ := newMLP(1)

	named := model.NamedParameters()
	params := model.Parameters()
	require.Len(t, named, len(params))

	var names []string
	for i, np := range named {
		assert.Same(t, params[i], np.Param, "order of %s", np.Name)
		names = append(names, np.Name)
	}
	// Flatten at 0, ReLUs at 2 and 4.
	assert.Equal(t, []string{"1.weight", "1.bias", "3.weight", "3.bias", "5.weight", "5.bias"}, names)
	assert.Equal(t, 4*8+8+8*6+6+6*3+3, nn.NumParameters(params))
}

func TestMLP_ForwardFlattens(t *testing.T) {
	model, backend := newMLP(1)

	x := tensor.Randn(tensor.Shape{5, 2, 2}, rand.New(rand.NewSource(2)), backend)
	out := model.Forward(x)
	assert.Equal(t, tensor.Shape{5, 3}, out.Shape())
}

func TestSequential_StateDictRoundTrip(t *testing.T) {
	src, _ := newMLP(1)
	dst, _ := newMLP(2)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	for name, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[name].AsFloat32(), name)
	}

	// Loading copies; the models stay independent.
	src.Parameters()[0].Tensor().Data()[0] += 1
	assert.NotEqual(t, src.Parameters()[0].Tensor().Data()[0], dst.Parameters()[0].Tensor().Data()[0])
}

func TestSequential_LoadStateDictErrors(t *testing.T) {
	model, backend := newMLP(1)

	missing := model.StateDict()
	delete(missing, "3.bias")
	assert.Error(t, model.LoadStateDict(missing))

	wrongShape := model.StateDict()
	wrongShape["1.bias"] = mustRaw(t, []float32{1, 2}, tensor.Shape{2}, backend)
	assert.Error(t, model.LoadStateDict(wrongShape))
}

func TestSnapshot_Independent(t *testing.T) {
	model, _ := newMLP(1)

	snap := nn.Snapshot[Backend](model)
	require.Len(t, snap, 6)

	before := append([]float32(nil), snap["1.weight"].AsFloat32()...)
	model.Parameters()[0].Tensor().Data()[0] += 10
	assert.Equal(t, before, snap["1.weight"].AsFloat32())
}

func TestAssignGrads(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := nn.NewParameter("a", tensor.Ones[float32](tensor.Shape{2}, backend))
	b := nn.NewParameter("b", tensor.Ones[float32](tensor.Shape{2}, backend))
	b.SetGrad(tensor.Ones[float32](tensor.Shape{2}, backend))

	g := mustRaw(t, []float32{3, 4}, tensor.Shape{2}, backend)
	nn.AssignGrads([]*nn.Parameter[Backend]{a, b}, map[*tensor.RawTensor]*tensor.RawTensor{
		a.Tensor().Raw(): g,
	})

	require.NotNil(t, a.Grad())
	assert.Equal(t, []float32{3, 4}, a.Grad().Data())
	assert.Nil(t, b.Grad(), "parameter off the graph keeps no stale gradient")
}

func TestCrossEntropyLoss_Backward(t *testing.T) {
	model, backend := newMLP(3)
	criterion := nn.NewCrossEntropyLoss(backend)

	x := tensor.Randn(tensor.Shape{6, 4}, rand.New(rand.NewSource(4)), backend)
	y, err := tensor.FromSlice([]int32{0, 1, 2, 0, 1, 2}, tensor.Shape{6}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	loss := criterion.Forward(model.Forward(x), y)
	grads := autodiff.Backward(loss, backend)
	backend.Tape().StopRecording()

	assert.Positive(t, loss.Item())
	for _, np := range model.NamedParameters() {
		g, ok := grads[np.Param.Tensor().Raw()]
		require.True(t, ok, "no gradient for %s", np.Name)
		assert.Equal(t, np.Param.Tensor().Shape(), g.Shape(), np.Name)
	}
}

func mustRaw(t *testing.T, data []float32, shape tensor.Shape, backend Backend) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x.Raw()
}
