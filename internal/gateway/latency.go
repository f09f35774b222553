package gateway

import (
	"math"
	"sort"
	"sync"
)

// LatencyTracker keeps a sliding window of tick fan-out latencies, measured
// from the tick timestamp to the moment the hub broadcasts it. Samples are
// stored in milliseconds in a ring of fixed capacity.
type LatencyTracker struct {
	mu      sync.Mutex
	window  []float64
	next    int
	filled  bool
}

// NewLatencyTracker creates a tracker over the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{window: make([]float64, capacity)}
}

// Record adds one latency sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.window[lt.next] = ms
	lt.next++
	if lt.next == len(lt.window) {
		lt.next = 0
		lt.filled = true
	}
	lt.mu.Unlock()
}

// Count returns the number of samples currently in the window.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.count()
}

func (lt *LatencyTracker) count() int {
	if lt.filled {
		return len(lt.window)
	}
	return lt.next
}

// Percentiles returns the p50, p95 and p99 latency in milliseconds, or
// zeros when no samples have been recorded. Window order does not matter
// for percentiles, so the ring is copied as-is and sorted.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	n := lt.count()
	sorted := make([]float64, n)
	copy(sorted, lt.window[:n])
	lt.mu.Unlock()

	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// quantile interpolates the q-th quantile (0..1) of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := q * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
