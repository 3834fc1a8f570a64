package gateway

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Stream classes tracked separately: signal delivery latency is what a
// subscriber trades on, candle latency only delays the chart.
const (
	classCandle = "candle"
	classSignal = "signal"
)

// LatencyTracker records source-timestamp-to-broadcast latency samples
// per stream class and computes percentiles over a sliding window.
// Thread-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	windows map[string]*latencyWindow
	size    int
}

// latencyWindow is a fixed-size circular sample buffer (values in ms).
type latencyWindow struct {
	samples []float64
	pos     int
	count   int
}

// NewLatencyTracker creates a tracker keeping the last `capacity`
// samples per stream class.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{
		windows: make(map[string]*latencyWindow),
		size:    capacity,
	}
}

// classify maps a pubsub channel name to its stream class.
func classify(channel string) string {
	if strings.HasPrefix(channel, "pub:signals:") || strings.HasPrefix(channel, "signals:") {
		return classSignal
	}
	return classCandle
}

// Record adds a latency sample in milliseconds for the given channel.
func (lt *LatencyTracker) Record(channel string, latencyMs float64) {
	class := classify(channel)

	lt.mu.Lock()
	w, ok := lt.windows[class]
	if !ok {
		w = &latencyWindow{samples: make([]float64, lt.size)}
		lt.windows[class] = w
	}
	w.samples[w.pos] = latencyMs
	w.pos = (w.pos + 1) % lt.size
	if w.count < lt.size {
		w.count++
	}
	lt.mu.Unlock()
}

// Percentiles returns p50, p95, p99 in milliseconds across all stream
// classes. Returns (0, 0, 0) if no samples have been recorded.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	var all []float64
	for _, w := range lt.windows {
		all = append(all, w.samples[:w.count]...)
	}
	lt.mu.Unlock()
	return percentiles(all)
}

// SignalPercentiles returns p50, p95, p99 for signal broadcasts only.
func (lt *LatencyTracker) SignalPercentiles() (p50, p95, p99 float64) {
	return lt.classPercentiles(classSignal)
}

func (lt *LatencyTracker) classPercentiles(class string) (p50, p95, p99 float64) {
	lt.mu.Lock()
	var samples []float64
	if w, ok := lt.windows[class]; ok {
		samples = append(samples, w.samples[:w.count]...)
	}
	lt.mu.Unlock()
	return percentiles(samples)
}

// Count returns the total number of samples held across classes.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	n := 0
	for _, w := range lt.windows {
		n += w.count
	}
	return n
}

func percentiles(samples []float64) (p50, p95, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(samples)
	return percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99)
}

// percentile computes the p-th percentile (0.0–1.0) of a sorted slice
// with linear interpolation between ranks.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
