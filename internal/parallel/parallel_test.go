package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForVisitsEveryIndex(t *testing.T) {
	cfg := DefaultConfig()
	n := 1000

	seen := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestForSequentialFallback(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Config{Enabled: false})
	if counter != 100 {
		t.Errorf("got %d iterations, want 100", counter)
	}
}

func TestForBelowChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	n := cfg.MinChunkSize - 1

	var counter int64
	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)
	if counter != int64(n) {
		t.Errorf("got %d iterations, want %d", counter, n)
	}
}

func TestForZeroIterations(t *testing.T) {
	For(0, func(_ int) {
		t.Error("body called for empty loop")
	}, DefaultConfig())
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}
