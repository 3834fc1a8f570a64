package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%f,%f,%f)", p50, p95, p99)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record("pub:candle:300s:BTCUSDT", 42.5)

	p50, p95, p99 := lt.Percentiles()
	if p50 != 42.5 || p95 != 42.5 || p99 != 42.5 {
		t.Errorf("got (%f,%f,%f), want 42.5 throughout", p50, p95, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)

	// Record 100 samples: 1.0, 2.0, 3.0, ..., 100.0
	for i := 1; i <= 100; i++ {
		lt.Record("pub:candle:300s:BTCUSDT", float64(i))
	}

	p50, p95, p99 := lt.Percentiles()

	if math.Abs(p50-50.5) > 1.0 {
		t.Errorf("p50: got %f, expected ~50.5", p50)
	}
	if math.Abs(p95-95.05) > 1.0 {
		t.Errorf("p95: got %f, expected ~95.05", p95)
	}
	if math.Abs(p99-99.01) > 1.0 {
		t.Errorf("p99: got %f, expected ~99.01", p99)
	}
}

func TestLatencyTracker_SignalsTrackedSeparately(t *testing.T) {
	lt := NewLatencyTracker(100)

	// Slow candle broadcasts must not pollute signal percentiles.
	for i := 0; i < 50; i++ {
		lt.Record("pub:candle:900s:BTCUSDT", 500)
	}
	lt.Record("pub:signals:BTCUSDT", 5)
	lt.Record("pub:signals:BTCUSDT", 7)

	s50, _, _ := lt.SignalPercentiles()
	if s50 != 6 {
		t.Errorf("signal p50 = %f, want 6", s50)
	}
	if p50, _, _ := lt.Percentiles(); p50 != 500 {
		t.Errorf("combined p50 = %f, want 500", p50)
	}
	if lt.Count() != 52 {
		t.Errorf("Count() = %d, want 52", lt.Count())
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10) // tiny capacity

	// Record 20 samples; the first 10 are evicted.
	for i := 1; i <= 20; i++ {
		lt.Record("pub:candle:300s:BTCUSDT", float64(i))
	}

	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}

	// After wraparound the window holds 11..20, median 15.5.
	p50, _, _ := lt.Percentiles()
	if math.Abs(p50-15.5) > 1.0 {
		t.Errorf("p50 after wraparound: got %f, expected ~15.5", p50)
	}
}

func TestClassify(t *testing.T) {
	if classify("pub:signals:BTCUSDT") != classSignal {
		t.Error("pubsub signal channel must classify as signal")
	}
	if classify("signals:BTCUSDT") != classSignal {
		t.Error("stream signal key must classify as signal")
	}
	if classify("pub:candle:300s:BTCUSDT") != classCandle {
		t.Error("candle channel must classify as candle")
	}
}
