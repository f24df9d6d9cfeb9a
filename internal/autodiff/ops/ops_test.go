package ops_test

import (
	"math"
	"testing"

	"github.com/oh-jka/PDCED/internal/autodiff/ops"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/tensor"
)

func scalar(t *testing.T, v float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	raw.AsFloat32()[0] = v
	return raw
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestCrossEntropyOp_Forward(t *testing.T) {
	backend := cpu.New()

	logits, _ := tensor.FromSlice([]float32{
		1, 2, 3, // target 2
		3, 2, 1, // target 0
	}, tensor.Shape{2, 3}, backend)
	targets, _ := tensor.FromSlice([]int32{2, 0}, tensor.Shape{2}, backend)

	output := ops.CrossEntropyForward(logits.Raw(), targets.Raw(), backend.Device())

	// -log softmax([1,2,3])[2] for both rows.
	want := 3 - math.Log(math.Exp(1)+math.Exp(2)+math.Exp(3))
	if got := output.AsFloat32()[0]; math.Abs(float64(got)+want) > 1e-5 {
		t.Errorf("loss = %f, want %f", got, -want)
	}
}

func TestCrossEntropyOp_Backward(t *testing.T) {
	backend := cpu.New()

	logits, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		3, 2, 1,
	}, tensor.Shape{2, 3}, backend)
	targets, _ := tensor.FromSlice([]int32{2, 0}, tensor.Shape{2}, backend)

	output := ops.CrossEntropyForward(logits.Raw(), targets.Raw(), backend.Device())
	op := ops.NewCrossEntropyOp(logits.Raw(), targets.Raw(), output)

	if len(op.Inputs()) != 1 || op.Inputs()[0] != logits.Raw() {
		t.Fatalf("inputs should be the logits only")
	}

	// Upstream 2 cancels the 1/batch_size factor: grad = softmax - one_hot.
	grads := op.Backward(scalar(t, 2), backend)
	if len(grads) != 1 {
		t.Fatalf("expected 1 gradient, got %d", len(grads))
	}
	got := grads[0].AsFloat32()
	want := []float32{
		0.0900306, 0.2447285, -0.3347590,
		-0.3347590, 0.2447285, 0.0900306,
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Errorf("grad[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	for row := 0; row < 2; row++ {
		var sum float32
		for _, g := range got[row*3 : row*3+3] {
			sum += g
		}
		if math.Abs(float64(sum)) > 1e-6 {
			t.Errorf("row %d gradient sums to %f, want 0", row, sum)
		}
	}
}

func TestCrossEntropyOp_InvalidTarget(t *testing.T) {
	backend := cpu.New()
	logits, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2}, backend)
	targets, _ := tensor.FromSlice([]int32{2}, tensor.Shape{1}, backend)

	expectPanic(t, "target out of range", func() {
		ops.CrossEntropyForward(logits.Raw(), targets.Raw(), backend.Device())
	})
}

func TestPenaltyOp_Backward(t *testing.T) {
	backend := cpu.New()

	w, _ := tensor.FromSlice([]float32{4, 5}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{6}, tensor.Shape{1}, backend)
	gw, _ := tensor.FromSlice([]float32{1, -2}, tensor.Shape{2}, backend)
	gb, _ := tensor.FromSlice([]float32{0.5}, tensor.Shape{1}, backend)
	value := scalar(t, 7)

	op := ops.NewPenaltyOp(
		[]*tensor.RawTensor{w.Raw(), b.Raw()},
		[]*tensor.RawTensor{gw.Raw(), gb.Raw()},
		value,
	)
	if op.Output() != value {
		t.Errorf("output should be the penalty value")
	}
	if len(op.Inputs()) != 2 || op.Inputs()[0] != w.Raw() || op.Inputs()[1] != b.Raw() {
		t.Errorf("inputs not preserved")
	}

	grads := op.Backward(scalar(t, 3), backend)
	want := [][]float32{{3, -6}, {1.5}}
	for i, g := range grads {
		got := g.AsFloat32()
		for j := range want[i] {
			if got[j] != want[i][j] {
				t.Errorf("grad[%d][%d] = %f, want %f", i, j, got[j], want[i][j])
			}
		}
	}

	// The stored local gradients must not be scaled in place.
	if gw.Raw().AsFloat32()[1] != -2 {
		t.Errorf("local gradient modified: %v", gw.Raw().AsFloat32())
	}
}

func TestPenaltyOp_Mismatch(t *testing.T) {
	backend := cpu.New()
	w, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	g, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)

	expectPanic(t, "shape mismatch", func() {
		ops.NewPenaltyOp([]*tensor.RawTensor{w.Raw()}, []*tensor.RawTensor{g.Raw()}, scalar(t, 0))
	})
	expectPanic(t, "count mismatch", func() {
		ops.NewPenaltyOp([]*tensor.RawTensor{w.Raw()}, nil, scalar(t, 0))
	})
}
