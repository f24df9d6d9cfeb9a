package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestForEach(t *testing.T) {
	cfg := DefaultConfig()

	n := 1000
	seen := make([]int32, n)
	err := ForEach(n, cfg, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	for i, c := range seen {
		if c != 1 {
			t.Errorf("job %d ran %d times", i, c)
		}
	}
}

func TestForEach_Sequential(t *testing.T) {
	var order []int
	err := ForEach(5, Config{Workers: 1}, func(i int) error {
		order = append(order, i)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("sequential order = %v", order)
		}
	}
}

func TestForEach_Error(t *testing.T) {
	errBoom := errors.New("boom")
	for _, workers := range []int{1, 4} {
		err := ForEach(50, Config{Workers: workers}, func(i int) error {
			if i == 7 {
				return errBoom
			}
			return nil
		})
		if !errors.Is(err, errBoom) {
			t.Errorf("workers=%d: got %v, want %v", workers, err, errBoom)
		}
	}
}

func TestForEach_Bounded(t *testing.T) {
	var running, peak int32
	err := ForEach(64, Config{Workers: 3}, func(int) error {
		cur := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", peak)
	}
}
