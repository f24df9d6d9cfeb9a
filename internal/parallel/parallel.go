// Package parallel runs independent jobs on a bounded number of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers int // Maximum concurrent jobs. Values < 2 run sequentially.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// ForEach calls f(i) for every i in [0, n) and returns the error of the
// lowest failing index, or nil. Jobs not yet started when a job fails are
// skipped.
func ForEach(n int, cfg Config, f func(i int) error) error {
	errs := make([]error, n)
	if cfg.Workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if errs[i] = f(i); errs[i] != nil {
				return errs[i]
			}
		}
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed bool
	)
	jobs := make(chan int)
	for w := 0; w < min(cfg.Workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				mu.Lock()
				skip := failed
				mu.Unlock()
				if skip {
					continue
				}
				if err := f(i); err != nil {
					errs[i] = err
					mu.Lock()
					failed = true
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
