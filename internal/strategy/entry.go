package strategy

import (
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

// Entry reason labels, carried verbatim into notifications.
const (
	ReasonDemandRetest = "4h Demand Retest"
	ReasonSupplyRetest = "4h Supply Retest"
	ReasonFVGRetest    = "MTF FVG Retest"
	ReasonRTSRetest    = "MTF RTS Level Retest"
	ReasonSTRRetest    = "MTF STR Level Retest"
)

// Levels is the cached structural context an entry decision reads: the HTF
// regime and zones plus the latest MTF gap/retest levels. Any level may be
// unset (OK=false) before its detector has fired.
type Levels struct {
	Regime     structure.Regime `json:"regime"`
	Supply     structure.Level  `json:"supply"`
	Demand     structure.Level  `json:"demand"`
	BullishFVG structure.Level  `json:"bullish_fvg"`
	BearishFVG structure.Level  `json:"bearish_fvg"`
	RTS        structure.Level  `json:"rts"`
	STR        structure.Level  `json:"str"`
}

// EvaluateEntry decides whether the current LTF candle qualifies as an entry.
// Only a Bullish regime checks long setups and only a Bearish regime checks
// short setups; Ranging never signals.
//
// Checks run in fixed priority order and the first match wins:
// zone retest, then FVG retest, then RTS/STR level retest.
func EvaluateEntry(c model.Candle, lv Levels, tolerance float64) (model.Side, string, bool) {
	switch lv.Regime {
	case structure.RegimeBullish:
		if touchesFromAbove(c.Low, lv.Demand, tolerance) {
			return model.SideLong, ReasonDemandRetest, true
		}
		if touchesFromAbove(c.Low, lv.BullishFVG, tolerance) {
			return model.SideLong, ReasonFVGRetest, true
		}
		if touchesFromAbove(c.Low, lv.RTS, tolerance) {
			return model.SideLong, ReasonRTSRetest, true
		}
	case structure.RegimeBearish:
		if touchesFromBelow(c.High, lv.Supply, tolerance) {
			return model.SideShort, ReasonSupplyRetest, true
		}
		if touchesFromBelow(c.High, lv.BearishFVG, tolerance) {
			return model.SideShort, ReasonFVGRetest, true
		}
		if touchesFromBelow(c.High, lv.STR, tolerance) {
			return model.SideShort, ReasonSTRRetest, true
		}
	}
	return "", "", false
}

// touchesFromAbove reports whether low dipped into the band
// [level*(1-tol), level] of a set level.
func touchesFromAbove(low float64, lv structure.Level, tol float64) bool {
	return lv.OK && low <= lv.Price && low >= lv.Price*(1-tol)
}

// touchesFromBelow reports whether high poked into the band
// [level, level*(1+tol)] of a set level.
func touchesFromBelow(high float64, lv structure.Level, tol float64) bool {
	return lv.OK && high >= lv.Price && high <= lv.Price*(1+tol)
}
