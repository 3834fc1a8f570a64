package structure

import "github.com/theonlyronsonik-lab/trading-for-btc/internal/model"

// FVGKind distinguishes bullish from bearish fair value gaps.
type FVGKind string

const (
	FVGBullish FVGKind = "BullishFVG"
	FVGBearish FVGKind = "BearishFVG"
)

// FVG is a fair value gap: a 3-candle imbalance where the middle candle's
// range does not bridge the outer candles. Level is the retest reference —
// the top of a bullish gap (c1 low) or the bottom of a bearish gap (c1 high).
type FVG struct {
	Kind  FVGKind `json:"kind"`
	Level float64 `json:"level"`
}

// DetectFVG matches the gap pattern on exactly three consecutive candles in
// time order. The bullish and bearish conditions are mutually exclusive:
// at most one result per call.
func DetectFVG(c1, c2, c3 model.Candle) (FVG, bool) {
	if c1.Low > c3.High && c3.High < c2.Low {
		return FVG{Kind: FVGBullish, Level: c1.Low}, true
	}
	if c1.High < c3.Low && c3.Low > c2.High {
		return FVG{Kind: FVGBearish, Level: c1.High}, true
	}
	return FVG{}, false
}
