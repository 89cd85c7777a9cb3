// Package parallel spreads independent loop iterations across CPU cores.
// Kernel loops over disjoint lanes or output elements use it to scale with
// the machine without each kernel managing goroutines itself.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a loop is split across workers.
type Config struct {
	Enabled      bool // run iterations concurrently when true
	NumWorkers   int  // goroutines to spread chunks over
	MinChunkSize int  // iterations below which the loop stays sequential
}

// DefaultConfig sizes the worker pool to the CPU count. Single-core hosts
// stay sequential.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n). Iterations must be mutually
// independent: each f(i) may only touch state no other iteration touches.
// Loops under MinChunkSize run inline on the calling goroutine.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
