package strategy

import (
	"testing"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

// testConfig narrows the swing windows so structure forms from short,
// hand-built candle sequences.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HTFSwingWindow = 1
	cfg.MTFSRWindow = 1
	return cfg
}

func htfCandle(offsetHours int, high, low, close float64) model.Candle {
	return model.Candle{
		Symbol: "BTCUSDT",
		TF:     3600,
		TS:     t0.Add(time.Duration(offsetHours) * time.Hour),
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
	}
}

func mtfCandle(offsetMin int, high, low, close float64) model.Candle {
	return model.Candle{
		Symbol: "BTCUSDT",
		TF:     900,
		TS:     t0.Add(time.Duration(offsetMin) * time.Minute),
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
	}
}

// feedBullishHTF drives the engine through an uptrend zigzag that confirms
// two rising swing highs and three rising swing lows, ending Bullish with
// the demand zone at 9.8. The final candle closes above the last swing high,
// so it also fires a bullish break of structure.
func feedBullishHTF(t *testing.T, e *Engine) {
	t.Helper()
	seq := []model.Candle{
		htfCandle(1, 10, 8, 9),
		htfCandle(2, 9.5, 7, 8),
		htfCandle(3, 11, 8.5, 10),
		htfCandle(4, 12, 9, 11),
		htfCandle(5, 11.5, 9.5, 10.5),
		htfCandle(6, 11, 8.8, 10),
		htfCandle(7, 12.5, 9.2, 12),
		htfCandle(8, 14, 10, 13.5),
		htfCandle(9, 13, 10.5, 12),
		htfCandle(10, 13.5, 9.8, 13),
		htfCandle(11, 15, 10.2, 14.5),
	}
	var bos structure.BOS
	var fired bool
	for _, c := range seq {
		if b, ok := e.OnHTFCandle(c); ok {
			bos, fired = b, true
		}
	}
	if e.Regime() != structure.RegimeBullish {
		t.Fatalf("setup: regime = %s, want Bullish", e.Regime())
	}
	if !fired || bos != structure.BOSBullish {
		t.Fatalf("setup: expected a bullish BOS, got (%s, %v)", bos, fired)
	}
}

func TestEngine_HTFStructure(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	feedBullishHTF(t, e)

	lv := e.Levels()
	if !lv.Demand.OK || lv.Demand.Price != 9.8 {
		t.Errorf("demand zone = %+v, want 9.8", lv.Demand)
	}
	if !lv.Supply.OK || lv.Supply.Price != 14 {
		t.Errorf("supply zone = %+v, want 14", lv.Supply)
	}
}

func TestEngine_OutOfOrderCandleDropped(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	var dropped []model.Candle
	e.OnDrop = func(tf int, c model.Candle) { dropped = append(dropped, c) }

	feedBullishHTF(t, e)
	e.OnHTFCandle(htfCandle(5, 50, 1, 25)) // stale, must not disturb state

	if len(dropped) != 1 || dropped[0].TF != 3600 {
		t.Fatalf("expected 1 dropped HTF candle, got %d", len(dropped))
	}
	if e.Regime() != structure.RegimeBullish {
		t.Errorf("regime changed after a dropped candle: %s", e.Regime())
	}
	if lv := e.Levels(); lv.Demand.Price != 9.8 {
		t.Errorf("demand zone changed after a dropped candle: %+v", lv.Demand)
	}
}

func TestEngine_EntryOnDemandRetest(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	feedBullishHTF(t, e)

	// Low dips into [9.8*(1-tol), 9.8] and stays above the derived stop.
	c := ltfCandle(700, 9.88, 9.7955, 9.84)
	entry, exit := e.OnLTFCandle(c)
	if entry == nil {
		t.Fatal("expected an entry signal")
	}
	if exit != nil {
		t.Fatalf("unexpected same-candle exit: %+v", exit)
	}
	if entry.Side != model.SideLong || entry.Reason != ReasonDemandRetest {
		t.Errorf("got (%s, %q)", entry.Side, entry.Reason)
	}
	if entry.EntryPrice != 9.84 {
		t.Errorf("entry price = %v, want close 9.84", entry.EntryPrice)
	}
	// Expected stops go through deriveStops so the comparison sees the
	// same float64 roundings as the engine, not constant-folded values.
	wantSL, wantTP := deriveStops(model.SideLong, 9.84, testConfig().SLPercent, testConfig().RRRatio)
	if entry.StopLoss != wantSL || entry.TakeProfit != wantTP {
		t.Errorf("stops = (%v, %v), want (%v, %v)", entry.StopLoss, entry.TakeProfit, wantSL, wantTP)
	}
	if e.Position() == nil {
		t.Error("engine must hold the open position")
	}
}

func TestEngine_AtMostOnePosition(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	feedBullishHTF(t, e)

	entry, _ := e.OnLTFCandle(ltfCandle(700, 9.88, 9.7955, 9.84))
	if entry == nil {
		t.Fatal("setup: first entry did not fire")
	}

	// A second qualifying candle: no new entry while the position is open.
	entry2, exit2 := e.OnLTFCandle(ltfCandle(705, 9.85, 9.7960, 9.83))
	if entry2 != nil {
		t.Errorf("second entry while a position is open: %+v", entry2)
	}
	if exit2 != nil {
		t.Errorf("unexpected exit: %+v", exit2)
	}
}

func TestEngine_SameCandleEntryAndExit(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	feedBullishHTF(t, e)

	// Touches the zone and closes high enough that its own low is already
	// below the derived stop: the position opens and stops out immediately.
	c := ltfCandle(700, 9.95, 9.796, 9.9)
	entry, exit := e.OnLTFCandle(c)
	if entry == nil || exit == nil {
		t.Fatalf("expected entry and exit on one candle, got (%v, %v)", entry, exit)
	}
	wantSL, _ := deriveStops(model.SideLong, 9.9, testConfig().SLPercent, testConfig().RRRatio)
	if exit.ExitPrice != wantSL || exit.Result != model.ResultLoss {
		t.Errorf("exit = (%v, %s), want (%v, Loss)", exit.ExitPrice, exit.Result, wantSL)
	}
	if exit.PnL != wantSL-9.9 {
		t.Errorf("pnl = %v, want %v", exit.PnL, wantSL-9.9)
	}
	if e.Position() != nil {
		t.Error("position must be closed after the stop")
	}
}

func TestEngine_ExitAtTakeProfit(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())
	feedBullishHTF(t, e)

	entry, _ := e.OnLTFCandle(ltfCandle(700, 9.88, 9.7955, 9.84))
	if entry == nil {
		t.Fatal("setup: entry did not fire")
	}

	_, exit := e.OnLTFCandle(ltfCandle(705, entry.TakeProfit+0.01, 9.82, entry.TakeProfit))
	if exit == nil {
		t.Fatal("expected a take-profit exit")
	}
	if exit.Result != model.ResultWin || exit.ExitPrice != entry.TakeProfit {
		t.Errorf("exit = (%v, %s)", exit.ExitPrice, exit.Result)
	}
	if exit.PnL != entry.TakeProfit-entry.EntryPrice {
		t.Errorf("pnl = %v, want %v", exit.PnL, entry.TakeProfit-entry.EntryPrice)
	}
}

func TestEngine_RetestLevelLifetime(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())

	// Resistance at 101 confirms, price breaks above it, then retests it.
	e.OnMTFCandle(mtfCandle(15, 100, 98, 99))
	e.OnMTFCandle(mtfCandle(30, 101, 98.5, 100))
	e.OnMTFCandle(mtfCandle(45, 100.5, 99, 100.2))
	e.OnMTFCandle(mtfCandle(60, 102, 100.8, 101.5))

	e.OnMTFCandle(mtfCandle(75, 101.6, 100.96, 101.3))
	if lv := e.Levels(); !lv.RTS.OK || lv.RTS.Price != 101 {
		t.Fatalf("RTS level = %+v, want 101 after confirmation", lv.RTS)
	}

	// Retest levels are per-candle; the next MTF candle clears them.
	e.OnMTFCandle(mtfCandle(90, 103, 102, 102.5))
	if lv := e.Levels(); lv.RTS.OK {
		t.Errorf("RTS level must not survive into the next MTF candle: %+v", lv.RTS)
	}
}

func TestEngine_FVGPersistsUntilSuperseded(t *testing.T) {
	e := NewEngine("BTCUSDT", testConfig())

	e.OnMTFCandle(mtfCandle(15, 110, 105, 106))
	e.OnMTFCandle(mtfCandle(30, 104, 100, 101))
	e.OnMTFCandle(mtfCandle(45, 98, 95, 96))
	if lv := e.Levels(); !lv.BullishFVG.OK || lv.BullishFVG.Price != 105 {
		t.Fatalf("bullish FVG = %+v, want 105", lv.BullishFVG)
	}

	// Later candles that form no gap leave the cached level in place.
	e.OnMTFCandle(mtfCandle(60, 99, 96, 97))
	e.OnMTFCandle(mtfCandle(75, 97, 94, 95))
	if lv := e.Levels(); !lv.BullishFVG.OK || lv.BullishFVG.Price != 105 {
		t.Errorf("bullish FVG must persist: %+v", lv.BullishFVG)
	}
}
