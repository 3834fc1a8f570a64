package structure

import (
	"testing"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

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

func TestTracker_BreachEnqueuesPending(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)

	// Close above resistance after it was established.
	_, rtsOK, _, strOK := tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)
	if rtsOK || strOK {
		t.Error("breach alone must not confirm anything")
	}
	if tr.PendingRTS() != 1 {
		t.Fatalf("expected 1 pending RTS level, got %d", tr.PendingRTS())
	}
}

func TestTracker_BreachDedup(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)

	c := mtfCandle(15, 103, 101, 102)
	tr.Observe(c, res, true, SwingPoint{}, false)
	// Same candle again: identical (price, breachTS) pair must not duplicate.
	tr.Observe(c, res, true, SwingPoint{}, false)
	if tr.PendingRTS() != 1 {
		t.Errorf("expected dedup to 1 pending level, got %d", tr.PendingRTS())
	}

	// A later breach of the same price is a distinct pending entry.
	tr.Observe(mtfCandle(30, 103, 101, 102), res, true, SwingPoint{}, false)
	if tr.PendingRTS() != 2 {
		t.Errorf("later breach at same price must add a new entry, got %d", tr.PendingRTS())
	}
}

func TestTracker_RTSConfirmation(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)

	// Breach at t+15.
	tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)

	// Retest: low within 0.1% of 100, close back above the level.
	rts, rtsOK, _, _ := tr.Observe(mtfCandle(30, 101.5, 99.95, 100.8), SwingPoint{}, false, SwingPoint{}, false)
	if !rtsOK {
		t.Fatal("expected RTS confirmation")
	}
	if rts.Level != 100 || rts.Kind != RetestRTS {
		t.Errorf("expected (100, RTS), got %+v", rts)
	}
	if tr.PendingRTS() != 0 {
		t.Errorf("confirmed level must be removed, %d left", tr.PendingRTS())
	}
}

func TestTracker_RTSRequiresCloseAboveLevel(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)
	tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)

	// Touch within tolerance but close below the level: no confirmation.
	_, rtsOK, _, _ := tr.Observe(mtfCandle(30, 100.5, 99.95, 99.97), SwingPoint{}, false, SwingPoint{}, false)
	if rtsOK {
		t.Error("close below the level must not confirm RTS")
	}
	if tr.PendingRTS() != 1 {
		t.Errorf("unconfirmed level must persist, got %d", tr.PendingRTS())
	}
}

func TestTracker_ToleranceBoundary(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)
	tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)

	// Low at exactly level*(1-tol): |99.9-100|/100 == 0.001, inclusive.
	_, rtsOK, _, _ := tr.Observe(mtfCandle(30, 101, 99.9, 100.5), SwingPoint{}, false, SwingPoint{}, false)
	if !rtsOK {
		t.Error("touch at the exact tolerance boundary must confirm")
	}
}

func TestTracker_STRConfirmation(t *testing.T) {
	tr := NewTracker(0.001)
	sup := sp(0, 100)

	// Support broken downward at t+15.
	tr.Observe(mtfCandle(15, 99.5, 97, 98), SwingPoint{}, false, sup, true)
	if tr.PendingSTR() != 1 {
		t.Fatalf("expected 1 pending STR level, got %d", tr.PendingSTR())
	}

	// Retest from below: high within tolerance, close below the level.
	_, _, str, strOK := tr.Observe(mtfCandle(30, 100.05, 98.5, 99.2), SwingPoint{}, false, SwingPoint{}, false)
	if !strOK {
		t.Fatal("expected STR confirmation")
	}
	if str.Level != 100 || str.Kind != RetestSTR {
		t.Errorf("expected (100, STR), got %+v", str)
	}
	if tr.PendingSTR() != 0 {
		t.Errorf("confirmed level must be removed, %d left", tr.PendingSTR())
	}
}

func TestTracker_ConfirmationRequiresLaterCandle(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)

	// Breach and retest shape on the SAME candle timestamp: currentTS must be
	// strictly after breachTS, so nothing confirms.
	c := mtfCandle(15, 103, 99.95, 100.8)
	_, rtsOK, _, _ := tr.Observe(c, res, true, SwingPoint{}, false)
	if rtsOK {
		t.Error("breach candle itself must not confirm its own level")
	}
}

func TestTracker_MultipleConfirmationsRemovedIndependently(t *testing.T) {
	tr := NewTracker(0.01)
	// Two pending levels close together, both touched by one wide candle.
	tr.SetPending([]PendingLevel{
		{Price: 100, BreachTS: t0},
		{Price: 100.5, BreachTS: t0},
	}, nil)

	rts, rtsOK, _, _ := tr.Observe(mtfCandle(30, 102, 100.2, 101.5), SwingPoint{}, false, SwingPoint{}, false)
	if !rtsOK {
		t.Fatal("expected a representative RTS signal")
	}
	// Last confirmed level is the representative.
	if rts.Level != 100.5 {
		t.Errorf("expected representative level 100.5, got %v", rts.Level)
	}
	if tr.PendingRTS() != 0 {
		t.Errorf("all confirmed levels must be removed, %d left", tr.PendingRTS())
	}
}

func TestTracker_ConfirmationIdempotentPerLevel(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)

	tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)
	_, rtsOK, _, _ := tr.Observe(mtfCandle(30, 101, 99.95, 100.8), SwingPoint{}, false, SwingPoint{}, false)
	if !rtsOK {
		t.Fatal("setup: first confirmation failed")
	}

	// The same retest shape again: level is gone, nothing to confirm.
	_, rtsOK, _, _ = tr.Observe(mtfCandle(45, 101, 99.95, 100.8), SwingPoint{}, false, SwingPoint{}, false)
	if rtsOK {
		t.Error("removed level must not confirm twice")
	}

	// A fresh breach at the same price re-adds a distinct pending entry.
	tr.Observe(mtfCandle(60, 103, 101, 102), res, true, SwingPoint{}, false)
	if tr.PendingRTS() != 1 {
		t.Errorf("re-breach must enqueue a new pending entry, got %d", tr.PendingRTS())
	}
}

func TestTracker_UnconfirmedLevelsPersist(t *testing.T) {
	tr := NewTracker(0.001)
	res := sp(0, 100)
	tr.Observe(mtfCandle(15, 103, 101, 102), res, true, SwingPoint{}, false)

	// Many candles that never come near the level: no eviction, no timeout.
	for i := 0; i < 50; i++ {
		tr.Observe(mtfCandle(30+i*15, 120, 115, 118), SwingPoint{}, false, SwingPoint{}, false)
	}
	if tr.PendingRTS() != 1 {
		t.Errorf("pending levels must persist indefinitely, got %d", tr.PendingRTS())
	}
}

func TestTracker_SnapshotRoundTrip(t *testing.T) {
	tr := NewTracker(0.001)
	tr.SetPending(
		[]PendingLevel{{Price: 100, BreachTS: t0}},
		[]PendingLevel{{Price: 90, BreachTS: t0.Add(time.Hour)}},
	)

	rts, str := tr.Pending()
	tr2 := NewTracker(0.001)
	tr2.SetPending(rts, str)

	if tr2.PendingRTS() != 1 || tr2.PendingSTR() != 1 {
		t.Errorf("restored tracker lost entries: rts=%d str=%d", tr2.PendingRTS(), tr2.PendingSTR())
	}
}
