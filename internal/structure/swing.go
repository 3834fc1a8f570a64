// Package structure turns raw candle windows into structural facts:
// swing points, trend regime, break-of-structure events, supply/demand
// zones, fair value gaps, and support/resistance role reversals.
//
// All functions are pure except the retest Tracker, which owns the two
// pending-level sets. Absence of a signal is expressed as a false second
// return value, never as a zero price.
package structure

import (
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// SwingPoint is a confirmed local price extremum.
type SwingPoint struct {
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// FindSwingHigh confirms the candidate candle at index w of the window as a
// swing high. The window must contain at least 2w+1 candles in time order;
// only the first 2w+1 are examined. The candidate confirms when its high
// equals the window maximum — equality, not strict dominance, so a flat
// double-top confirms. That is intentional.
func FindSwingHigh(window []model.Candle, w int) (SwingPoint, bool) {
	span := 2*w + 1
	if len(window) < span {
		return SwingPoint{}, false
	}
	candidate := window[w]
	max := window[0].High
	for _, c := range window[1:span] {
		if c.High > max {
			max = c.High
		}
	}
	if candidate.High == max {
		return SwingPoint{TS: candidate.TS, Price: candidate.High}, true
	}
	return SwingPoint{}, false
}

// FindSwingLow confirms the candidate candle at index w as a swing low.
// Mirror of FindSwingHigh; ties with the window minimum confirm.
func FindSwingLow(window []model.Candle, w int) (SwingPoint, bool) {
	span := 2*w + 1
	if len(window) < span {
		return SwingPoint{}, false
	}
	candidate := window[w]
	min := window[0].Low
	for _, c := range window[1:span] {
		if c.Low < min {
			min = c.Low
		}
	}
	if candidate.Low == min {
		return SwingPoint{TS: candidate.TS, Price: candidate.Low}, true
	}
	return SwingPoint{}, false
}

// FindResistance detects a resistance level on the S/R timeframe.
// It is exactly the swing-high detector, not a separate implementation.
func FindResistance(window []model.Candle, w int) (SwingPoint, bool) {
	return FindSwingHigh(window, w)
}

// FindSupport detects a support level; exactly the swing-low detector.
func FindSupport(window []model.Candle, w int) (SwingPoint, bool) {
	return FindSwingLow(window, w)
}
