// Package buffer provides a fixed-capacity, time-ordered candle window per
// timeframe. Appends are rejected unless the candle's timestamp is strictly
// after the current tail, so structural detectors always see an increasing
// sequence.
package buffer

import (
	"errors"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// ErrOutOfOrder is returned when a candle's timestamp is not strictly after
// the buffer's most recent entry. Out-of-order delivery is a boundary-layer
// bug; callers count and skip rather than corrupt state.
var ErrOutOfOrder = errors.New("buffer: candle timestamp not after tail")

// Buffer is a bounded, append-only candle window. Once capacity is exceeded,
// the oldest entries are evicted. Not goroutine-safe: owned by the single
// evaluation goroutine, like all engine state.
type Buffer struct {
	capacity int
	candles  []model.Candle
}

// New creates a buffer holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		candles:  make([]model.Candle, 0, capacity),
	}
}

// Append adds a candle, evicting the oldest if the buffer is full.
// Returns ErrOutOfOrder if c.TS is not strictly after the current tail.
func (b *Buffer) Append(c model.Candle) error {
	if n := len(b.candles); n > 0 && !c.TS.After(b.candles[n-1].TS) {
		return ErrOutOfOrder
	}
	if len(b.candles) == b.capacity {
		copy(b.candles, b.candles[1:])
		b.candles = b.candles[:b.capacity-1]
	}
	b.candles = append(b.candles, c)
	return nil
}

// Len returns the number of buffered candles.
func (b *Buffer) Len() int {
	return len(b.candles)
}

// Last returns the most recent candle, or false if the buffer is empty.
func (b *Buffer) Last() (model.Candle, bool) {
	if len(b.candles) == 0 {
		return model.Candle{}, false
	}
	return b.candles[len(b.candles)-1], true
}

// Tail returns the last n candles oldest-first, or nil if fewer are buffered.
// The returned slice aliases the buffer; callers must not retain it across
// the next Append.
func (b *Buffer) Tail(n int) []model.Candle {
	if len(b.candles) < n {
		return nil
	}
	return b.candles[len(b.candles)-n:]
}

// All returns a copy of the buffered candles, oldest first.
func (b *Buffer) All() []model.Candle {
	cp := make([]model.Candle, len(b.candles))
	copy(cp, b.candles)
	return cp
}
