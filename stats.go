package dashmask

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats summarises recent processing tick durations
type LatencyStats struct {
	// Samples is the number of ticks in the window
	Samples int
	Mean    time.Duration
	StdDev  time.Duration
	// P95 is the 95th percentile tick duration
	P95 time.Duration
	Max time.Duration
}

// latencyWindow keeps the durations of the last size ticks
type latencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// newLatencyWindow returns a window holding size samples
func newLatencyWindow(size int) *latencyWindow {

	if size < 1 {
		size = 1
	}

	return &latencyWindow{
		samples: make([]float64, size),
	}
}

// Add records a tick duration
func (w *latencyWindow) Add(d time.Duration) {

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = float64(d)
	w.next++

	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Stats returns the summary of the samples in the window
func (w *latencyWindow) Stats() LatencyStats {

	w.mu.Lock()

	n := w.next
	if w.full {
		n = len(w.samples)
	}

	data := make([]float64, n)
	copy(data, w.samples[:n])

	w.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}

	sort.Float64s(data)

	mean, std := stat.MeanStdDev(data, nil)

	if n == 1 {
		// sample standard deviation is undefined for a single value
		std = 0
	}

	return LatencyStats{
		Samples: n,
		Mean:    time.Duration(mean),
		StdDev:  time.Duration(std),
		P95:     time.Duration(stat.Quantile(0.95, stat.Empirical, data, nil)),
		Max:     time.Duration(data[n-1]),
	}
}
