package structure

import "github.com/theonlyronsonik-lab/trading-for-btc/internal/model"

// Regime labels the current market structure on the context timeframe.
type Regime string

const (
	RegimeBullish Regime = "Bullish"
	RegimeBearish Regime = "Bearish"
	RegimeRanging Regime = "Ranging"
)

// Classify determines the regime from the two most recent confirmed swing
// highs and swing lows (each ordered oldest→newest). Fewer than two of
// either yields Ranging.
//
// Bullish: higher high AND higher low AND the latest swing low formed after
// the latest swing high. Bearish is the mirror. The timestamp condition is a
// simplified sequencing heuristic — it does not validate strict alternation
// of swing types, and sequences like two highs with no intervening low can
// land in Ranging. That behavior is part of the contract.
func Classify(highs, lows []SwingPoint) Regime {
	if len(highs) < 2 || len(lows) < 2 {
		return RegimeRanging
	}
	sh1, sh2 := highs[len(highs)-2], highs[len(highs)-1]
	sl1, sl2 := lows[len(lows)-2], lows[len(lows)-1]

	switch {
	case sh2.Price > sh1.Price && sl2.Price > sl1.Price && sl2.TS.After(sh2.TS):
		return RegimeBullish
	case sl2.Price < sl1.Price && sh2.Price < sh1.Price && sh2.TS.After(sl2.TS):
		return RegimeBearish
	}
	return RegimeRanging
}

// BOS labels a break-of-structure event.
type BOS string

const (
	BOSBullish BOS = "Bullish BOS"
	BOSBearish BOS = "Bearish BOS"
)

// DetectBOS fires when the candle closes beyond the governing swing level in
// the direction of the regime, after that swing was established. Ranging
// regimes and undefined swings never fire.
func DetectBOS(c model.Candle, regime Regime, lastHigh SwingPoint, haveHigh bool, lastLow SwingPoint, haveLow bool) (BOS, bool) {
	switch regime {
	case RegimeBullish:
		if haveHigh && c.TS.After(lastHigh.TS) && c.Close > lastHigh.Price {
			return BOSBullish, true
		}
	case RegimeBearish:
		if haveLow && c.TS.After(lastLow.TS) && c.Close < lastLow.Price {
			return BOSBearish, true
		}
	}
	return "", false
}

// Level is an optional price level. OK is false until the first swing of the
// corresponding type has been confirmed; a zero price is never used as a
// "no level" sentinel.
type Level struct {
	Price float64 `json:"price"`
	OK    bool    `json:"ok"`
}

// Zones projects the latest confirmed swings into the active supply and
// demand zone levels. Pure projection: no state beyond the swings themselves.
func Zones(lastHigh SwingPoint, haveHigh bool, lastLow SwingPoint, haveLow bool) (supply, demand Level) {
	if haveHigh {
		supply = Level{Price: lastHigh.Price, OK: true}
	}
	if haveLow {
		demand = Level{Price: lastLow.Price, OK: true}
	}
	return supply, demand
}
