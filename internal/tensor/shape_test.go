package tensor_test

import (
	"testing"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// TestBroadcastShapes tests NumPy-style shape broadcasting.
func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      tensor.Shape
		want      tensor.Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", tensor.Shape{3, 5}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, false, false},
		{"column", tensor.Shape{3, 1}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, true, false},
		{"bias row", tensor.Shape{4, 3}, tensor.Shape{1, 3}, tensor.Shape{4, 3}, true, false},
		{"rank", tensor.Shape{4, 3}, tensor.Shape{3}, tensor.Shape{4, 3}, true, false},
		{"incompatible", tensor.Shape{3, 4}, tensor.Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := tensor.BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %v and %v", tt.a, tt.b)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("shape = %v, want %v", got, tt.want)
			}
			if broadcast != tt.broadcast {
				t.Errorf("broadcast = %v, want %v", broadcast, tt.broadcast)
			}
		})
	}
}

// TestBroadcastOffset tests flat index mapping into a broadcast input.
func TestBroadcastOffset(t *testing.T) {
	out := tensor.Shape{2, 3}

	// A [1, 3] row repeats along dim 0.
	row := tensor.Shape{1, 3}
	for flat, want := range []int{0, 1, 2, 0, 1, 2} {
		if got := tensor.BroadcastOffset(flat, out, row); got != want {
			t.Errorf("row offset(%d) = %d, want %d", flat, got, want)
		}
	}

	// A [2, 1] column repeats along dim 1.
	col := tensor.Shape{2, 1}
	for flat, want := range []int{0, 0, 0, 1, 1, 1} {
		if got := tensor.BroadcastOffset(flat, out, col); got != want {
			t.Errorf("column offset(%d) = %d, want %d", flat, got, want)
		}
	}
}

// TestShape_Validate tests shape validation.
func TestShape_Validate(t *testing.T) {
	if err := (tensor.Shape{2, 3}).Validate(); err != nil {
		t.Errorf("Validate([2 3]) = %v", err)
	}
	if err := (tensor.Shape{2, -1}).Validate(); err == nil {
		t.Error("Validate([2 -1]) should fail")
	}
}

// TestShape_Strides tests row-major strides.
func TestShape_Strides(t *testing.T) {
	got := tensor.Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ComputeStrides() = %v, want %v", got, want)
		}
	}
}
