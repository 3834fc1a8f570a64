// Package sim generates a random-walk candle stream for offline runs and
// demos, served to the pipeline by cmd/feedsim.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// Walker produces a deterministic (per seed) random-walk candle sequence
// for one symbol. Each candle opens at the previous close and moves by a
// small fraction of the price; prices are floored at 100 so the walk never
// collapses to zero.
type Walker struct {
	symbol    string
	tf        int
	lastClose float64
	next      time.Time
	rng       *rand.Rand
}

// New creates a walker starting at startPrice with candles of tf seconds,
// the first one stamped at start.
func New(symbol string, tf int, startPrice float64, start time.Time, seed int64) *Walker {
	return &Walker{
		symbol:    symbol,
		tf:        tf,
		lastClose: startPrice,
		next:      start.UTC().Truncate(time.Duration(tf) * time.Second),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next closed candle in the walk.
func (w *Walker) Next() model.Candle {
	open := w.lastClose
	change := w.uniform(-0.1, 0.1) * (w.lastClose * 0.001)
	close_ := open + change
	high := math.Max(open, close_) + math.Abs(w.uniform(0, 0.05)*(w.lastClose*0.001))
	low := math.Min(open, close_) - math.Abs(w.uniform(0, 0.05)*(w.lastClose*0.001))
	volume := math.Round(w.rng.NormFloat64()*200 + 1000)
	if volume < 0 {
		volume = 0
	}

	open = math.Max(100.0, open)
	close_ = math.Max(100.0, close_)
	high = math.Max(high, math.Max(open, close_))
	low = math.Min(low, math.Min(open, close_))

	c := model.Candle{
		Symbol: w.symbol,
		TF:     w.tf,
		TS:     w.next,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close_,
		Volume: volume,
	}

	w.lastClose = close_
	w.next = w.next.Add(time.Duration(w.tf) * time.Second)
	return c
}

func (w *Walker) uniform(lo, hi float64) float64 {
	return lo + w.rng.Float64()*(hi-lo)
}
