package strategy

import (
	"testing"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func ltfCandle(offsetMin int, high, low, close float64) model.Candle {
	return model.Candle{
		Symbol: "BTCUSDT",
		TF:     300,
		TS:     t0.Add(time.Duration(offsetMin) * time.Minute),
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
	}
}

func lvl(p float64) structure.Level { return structure.Level{Price: p, OK: true} }

func TestEvaluateEntry_DemandRetest(t *testing.T) {
	lv := Levels{Regime: structure.RegimeBullish, Demand: lvl(100)}
	c := ltfCandle(0, 101, 99.98, 100.5) // low inside [99.95, 100]

	side, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok {
		t.Fatal("expected a long entry")
	}
	if side != model.SideLong || reason != ReasonDemandRetest {
		t.Errorf("got (%s, %q)", side, reason)
	}
}

func TestEvaluateEntry_RangingNeverSignals(t *testing.T) {
	lv := Levels{
		Regime:     structure.RegimeRanging,
		Demand:     lvl(100),
		Supply:     lvl(100),
		BullishFVG: lvl(100),
		BearishFVG: lvl(100),
		RTS:        lvl(100),
		STR:        lvl(100),
	}
	c := ltfCandle(0, 100, 100, 100)

	if _, _, ok := EvaluateEntry(c, lv, 0.01); ok {
		t.Error("ranging regime must never produce a signal")
	}
}

func TestEvaluateEntry_ZoneBeatsFVG(t *testing.T) {
	// Both the demand zone and the bullish FVG are touched by the same low;
	// the zone retest has priority.
	lv := Levels{
		Regime:     structure.RegimeBullish,
		Demand:     lvl(100),
		BullishFVG: lvl(100),
	}
	c := ltfCandle(0, 101, 99.98, 100.5)

	_, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok || reason != ReasonDemandRetest {
		t.Errorf("expected %q, got (%q, %v)", ReasonDemandRetest, reason, ok)
	}
}

func TestEvaluateEntry_FVGBeatsRTS(t *testing.T) {
	lv := Levels{
		Regime:     structure.RegimeBullish,
		BullishFVG: lvl(100),
		RTS:        lvl(100),
	}
	c := ltfCandle(0, 101, 99.98, 100.5)

	_, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok || reason != ReasonFVGRetest {
		t.Errorf("expected %q, got (%q, %v)", ReasonFVGRetest, reason, ok)
	}
}

func TestEvaluateEntry_RTSRetest(t *testing.T) {
	lv := Levels{Regime: structure.RegimeBullish, RTS: lvl(100)}
	c := ltfCandle(0, 101, 99.98, 100.5)

	side, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok || side != model.SideLong || reason != ReasonRTSRetest {
		t.Errorf("got (%s, %q, %v)", side, reason, ok)
	}
}

func TestEvaluateEntry_BandIsOneSided(t *testing.T) {
	lv := Levels{Regime: structure.RegimeBullish, Demand: lvl(100)}

	// Low above the level: no touch.
	if _, _, ok := EvaluateEntry(ltfCandle(0, 101, 100.02, 100.5), lv, 0.0005); ok {
		t.Error("low above the zone must not count as a touch")
	}
	// Low below the tolerance band: pierced through, no touch.
	if _, _, ok := EvaluateEntry(ltfCandle(0, 101, 99.90, 100.5), lv, 0.0005); ok {
		t.Error("low below zone*(1-tol) must not count as a touch")
	}
	// Low exactly at zone*(1-tol): inclusive.
	if _, _, ok := EvaluateEntry(ltfCandle(0, 101, 99.95, 100.5), lv, 0.0005); !ok {
		t.Error("low at the band edge must count as a touch")
	}
}

func TestEvaluateEntry_SupplyRetestShort(t *testing.T) {
	lv := Levels{Regime: structure.RegimeBearish, Supply: lvl(100)}
	c := ltfCandle(0, 100.03, 99, 99.5) // high inside [100, 100.05]

	side, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok {
		t.Fatal("expected a short entry")
	}
	if side != model.SideShort || reason != ReasonSupplyRetest {
		t.Errorf("got (%s, %q)", side, reason)
	}
}

func TestEvaluateEntry_BearishPriority(t *testing.T) {
	lv := Levels{
		Regime:     structure.RegimeBearish,
		Supply:     lvl(100),
		BearishFVG: lvl(100),
		STR:        lvl(100),
	}
	c := ltfCandle(0, 100.03, 99, 99.5)

	_, reason, ok := EvaluateEntry(c, lv, 0.0005)
	if !ok || reason != ReasonSupplyRetest {
		t.Errorf("expected %q, got (%q, %v)", ReasonSupplyRetest, reason, ok)
	}
}

func TestEvaluateEntry_UnsetLevelsSkipped(t *testing.T) {
	// Bullish regime with only an STR level (a short-side input): nothing to
	// check on the long side.
	lv := Levels{Regime: structure.RegimeBullish, STR: lvl(100)}
	if _, _, ok := EvaluateEntry(ltfCandle(0, 101, 99.98, 100.5), lv, 0.0005); ok {
		t.Error("unset long-side levels must not signal")
	}
}
