package structure

import (
	"testing"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// windowFromHighs builds a candle window whose highs are the given values.
// Lows mirror at -10 so they never interfere with swing-high detection.
func windowFromHighs(highs ...float64) []model.Candle {
	out := make([]model.Candle, len(highs))
	for i, h := range highs {
		out[i] = model.Candle{
			Symbol: "BTCUSDT",
			TF:     3600,
			TS:     t0.Add(time.Duration(i) * time.Hour),
			Open:   h - 1,
			High:   h,
			Low:    h - 10,
			Close:  h - 1,
		}
	}
	return out
}

func windowFromLows(lows ...float64) []model.Candle {
	out := make([]model.Candle, len(lows))
	for i, l := range lows {
		out[i] = model.Candle{
			Symbol: "BTCUSDT",
			TF:     3600,
			TS:     t0.Add(time.Duration(i) * time.Hour),
			Open:   l + 1,
			High:   l + 10,
			Low:    l,
			Close:  l + 1,
		}
	}
	return out
}

func TestFindSwingHigh_PeakedCenter(t *testing.T) {
	// Window [10,12,15,11,9], w=2 — candidate at index 2 with high 15.
	window := windowFromHighs(10, 12, 15, 11, 9)
	sp, ok := FindSwingHigh(window, 2)
	if !ok {
		t.Fatal("expected swing high confirmation")
	}
	if sp.Price != 15 {
		t.Errorf("expected price 15, got %v", sp.Price)
	}
	if !sp.TS.Equal(window[2].TS) {
		t.Errorf("expected candidate timestamp %v, got %v", window[2].TS, sp.TS)
	}
}

func TestFindSwingHigh_CandidateNotExtremum(t *testing.T) {
	window := windowFromHighs(10, 16, 15, 11, 9)
	if _, ok := FindSwingHigh(window, 2); ok {
		t.Error("candidate below window max must not confirm")
	}
}

func TestFindSwingHigh_FlatTopTieConfirms(t *testing.T) {
	// Double top: candidate equals but does not exceed another high.
	window := windowFromHighs(10, 15, 15, 11, 9)
	sp, ok := FindSwingHigh(window, 2)
	if !ok {
		t.Fatal("tie with window max must still confirm")
	}
	if sp.Price != 15 {
		t.Errorf("expected 15, got %v", sp.Price)
	}
}

func TestFindSwingHigh_ShortWindow(t *testing.T) {
	window := windowFromHighs(10, 12, 15, 11)
	if _, ok := FindSwingHigh(window, 2); ok {
		t.Error("window shorter than 2w+1 must not confirm")
	}
}

func TestFindSwingHigh_LongerWindowUsesFirstSpan(t *testing.T) {
	// Extra trailing candle with a larger high is outside the 2w+1 span
	// and must not veto the candidate.
	window := windowFromHighs(10, 12, 15, 11, 9, 20)
	sp, ok := FindSwingHigh(window, 2)
	if !ok {
		t.Fatal("expected confirmation from the first 2w+1 candles")
	}
	if sp.Price != 15 {
		t.Errorf("expected 15, got %v", sp.Price)
	}
}

func TestFindSwingLow_Basic(t *testing.T) {
	window := windowFromLows(100, 98, 95, 97, 99)
	sp, ok := FindSwingLow(window, 2)
	if !ok {
		t.Fatal("expected swing low confirmation")
	}
	if sp.Price != 95 {
		t.Errorf("expected 95, got %v", sp.Price)
	}
}

func TestFindSwingLow_FlatBottomTieConfirms(t *testing.T) {
	window := windowFromLows(100, 95, 95, 97, 99)
	if _, ok := FindSwingLow(window, 2); !ok {
		t.Error("flat double-bottom must confirm")
	}
}

func TestSRDetectorsAliasSwingDetectors(t *testing.T) {
	window := windowFromHighs(10, 12, 15, 11, 9)
	swing, _ := FindSwingHigh(window, 2)
	res, ok := FindResistance(window, 2)
	if !ok || res != swing {
		t.Error("FindResistance must be identical to FindSwingHigh")
	}

	lows := windowFromLows(100, 98, 95, 97, 99)
	swingLo, _ := FindSwingLow(lows, 2)
	sup, ok := FindSupport(lows, 2)
	if !ok || sup != swingLo {
		t.Error("FindSupport must be identical to FindSwingLow")
	}
}
