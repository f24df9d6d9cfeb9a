package autodiff_test

import (
	"math"
	"testing"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/tensor"
)

func floatEqual(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) < eps
}

func assertGrad(t *testing.T, name string, grad *tensor.RawTensor, want []float32) {
	t.Helper()
	if grad == nil {
		t.Fatalf("%s: no gradient", name)
	}
	got := grad.AsFloat32()
	if len(got) != len(want) {
		t.Fatalf("%s: %d elements, want %d", name, len(got), len(want))
	}
	for i := range want {
		if !floatEqual(got[i], want[i], 1e-5) {
			t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
		}
	}
}

// TestAutodiffBackend_Name tests the Name method.
func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Name() != "Autodiff(CPU)" {
		t.Errorf("Name() = %s, want Autodiff(CPU)", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want %v", backend.Device(), tensor.CPU)
	}
}

// TestTape_Recording tests tape recording on/off.
func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	_ = a.Add(a)
	if tape.NumOps() != 0 {
		t.Errorf("NumOps() = %d before StartRecording, want 0", tape.NumOps())
	}

	tape.StartRecording()
	_ = a.Add(a).Mul(a)
	if tape.NumOps() != 2 {
		t.Errorf("NumOps() = %d, want 2", tape.NumOps())
	}

	tape.Clear()
	if tape.NumOps() != 0 {
		t.Errorf("NumOps() = %d after Clear, want 0", tape.NumOps())
	}
	if !tape.IsRecording() {
		t.Error("Clear should not stop recording")
	}
}

// TestBackward_Square tests d(x²)/dx = 2x.
func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{3, -1}, tensor.Shape{2}, backend)
	y := x.Mul(x).Sum()
	grads := autodiff.Backward(y, backend)

	assertGrad(t, "dx", grads[x.Raw()], []float32{6, -2})
	if backend.Tape().IsRecording() != true {
		t.Error("Backward should restore the recording state")
	}
}

// TestBackward_LinearLayer tests gradients of sum(x @ wᵀ + b).
func TestBackward_LinearLayer(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)       // [batch=2, in=2]
	w, _ := tensor.FromSlice([]float32{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}, backend) // [out=3, in=2]
	b, _ := tensor.FromSlice([]float32{0.5, 0, -0.5}, tensor.Shape{3}, backend)

	out := x.MatMul(w.Transpose()).Add(b.Reshape(1, 3)).Sum()
	if got := out.Item(); !floatEqual(got, 20, 1e-5) {
		t.Fatalf("forward = %v, want 20", got)
	}

	grads := autodiff.Backward(out, backend)

	// d/dw[o, i] = Σ_batch x[batch, i]
	assertGrad(t, "dw", grads[w.Raw()], []float32{4, 6, 4, 6, 4, 6})
	// d/db = batch size
	assertGrad(t, "db", grads[b.Raw()], []float32{2, 2, 2})
	// d/dx[batch, i] = Σ_o w[o, i]
	assertGrad(t, "dx", grads[x.Raw()], []float32{2, 2, 2, 2})
}

// TestBackward_ReLU tests that ReLU blocks negative inputs.
func TestBackward_ReLU(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{-1, 2, 0.5, -3}, tensor.Shape{4}, backend)
	y := tensor.New[float32](backend.ReLU(x.Raw()), backend).MulScalar(2).Sum()
	grads := autodiff.Backward(y, backend)

	assertGrad(t, "dx", grads[x.Raw()], []float32{0, 2, 2, 0})
}

// TestBackward_CrossEntropy tests (softmax - onehot) / batch.
func TestBackward_CrossEntropy(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	logits, _ := tensor.FromSlice([]float32{0, 0, 1, 2, 3, 0}, tensor.Shape{2, 3}, backend)
	targets, _ := tensor.FromSlice([]int32{1, 0}, tensor.Shape{2}, backend)

	loss := backend.CrossEntropy(logits.Raw(), targets.Raw())

	lse0 := math.Log(2 + math.E)
	lse1 := math.Log(math.Exp(2) + math.Exp(3) + 1)
	want := float32((lse0 + (lse1 - 2)) / 2)
	if got := loss.AsFloat32()[0]; !floatEqual(got, want, 1e-5) {
		t.Errorf("loss = %v, want %v", got, want)
	}

	grads := autodiff.BackwardRaw(loss, backend)
	g := grads[logits.Raw()].AsFloat32()
	for row := 0; row < 2; row++ {
		var sum float32
		for c := 0; c < 3; c++ {
			sum += g[row*3+c]
		}
		if !floatEqual(sum, 0, 1e-6) {
			t.Errorf("row %d gradient sums to %v, want 0", row, sum)
		}
	}
	// Target entries are negative.
	if g[1] >= 0 || g[3] >= 0 {
		t.Errorf("target gradients should be negative: %v", g)
	}
}

// TestBackward_Penalty tests that an external penalty reaches its inputs.
func TestBackward_Penalty(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	p, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	dp, _ := tensor.FromSlice([]float32{0.1, 0.2}, tensor.Shape{2}, backend)

	base := p.Sum()
	reg := backend.Penalty([]*tensor.RawTensor{p.Raw()}, []*tensor.RawTensor{dp.Raw()}, 0.25)
	total := base.Add(tensor.New[float32](reg, backend))

	if got := total.Item(); !floatEqual(got, 3.25, 1e-6) {
		t.Errorf("total = %v, want 3.25", got)
	}

	grads := autodiff.Backward(total, backend)
	assertGrad(t, "dp", grads[p.Raw()], []float32{1.1, 1.2})
}

// TestBackward_NothingRecorded tests the empty tape panic.
func TestBackward_NothingRecorded(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, _ := tensor.FromSlice([]float32{1}, tensor.Shape{1}, backend)

	defer func() {
		if recover() == nil {
			t.Error("Backward on an empty tape should panic")
		}
	}()
	autodiff.Backward(x, backend)
}
