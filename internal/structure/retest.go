package structure

import (
	"math"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// PendingLevel is a broken support/resistance level awaiting confirmation in
// its flipped role.
type PendingLevel struct {
	Price    float64   `json:"price"`
	BreachTS time.Time `json:"breach_ts"`
}

// RetestKind distinguishes the two role reversals.
type RetestKind string

const (
	// RetestRTS: broken resistance confirmed as new support.
	RetestRTS RetestKind = "RTS"
	// RetestSTR: broken support confirmed as new resistance.
	RetestSTR RetestKind = "STR"
)

// RetestSignal reports a confirmed role reversal at a price level.
type RetestSignal struct {
	Level float64    `json:"level"`
	Kind  RetestKind `json:"kind"`
}

// Tracker owns the two open pending-level sets. A given (price, breachTS)
// pair appears at most once per set. Unconfirmed levels persist indefinitely:
// there is no eviction or timeout, so the sets grow without bound on
// long-running instruments. Callers should export PendingRTS/PendingSTR as a
// gauge to keep that visible.
type Tracker struct {
	tolerance float64 // retest tolerance as a fraction, e.g. 0.001 = 0.1%
	rts       []PendingLevel
	str       []PendingLevel
}

// NewTracker creates a tracker with the given retest tolerance fraction.
func NewTracker(tolerance float64) *Tracker {
	return &Tracker{tolerance: tolerance}
}

// SetTolerance changes the confirmation band. Applies to subsequent
// Observe calls only; already-pending levels are kept.
func (t *Tracker) SetTolerance(tolerance float64) {
	t.tolerance = tolerance
}

// Observe processes one S/R-timeframe candle: breaches of the last confirmed
// resistance/support enqueue pending levels, and pending levels touched
// within tolerance get confirmed and removed.
//
// At most one RTS and one STR signal are returned per call even when several
// pending levels confirm simultaneously — the last confirmed level of each
// kind is the representative; every confirmed entry is still removed.
func (t *Tracker) Observe(c model.Candle, lastRes SwingPoint, haveRes bool, lastSup SwingPoint, haveSup bool) (rts RetestSignal, rtsOK bool, str RetestSignal, strOK bool) {
	// Breach → pending. A close above resistance (after the level was
	// established) flips it to a potential support; mirror for support.
	if haveRes && c.Close > lastRes.Price && c.TS.After(lastRes.TS) {
		t.rts = addPending(t.rts, PendingLevel{Price: lastRes.Price, BreachTS: c.TS})
	}
	if haveSup && c.Close < lastSup.Price && c.TS.After(lastSup.TS) {
		t.str = addPending(t.str, PendingLevel{Price: lastSup.Price, BreachTS: c.TS})
	}

	// Pending → confirmed. Scan a snapshot and apply removals afterwards so
	// the set is never mutated mid-iteration.
	var confirmedRTS []PendingLevel
	for _, p := range snapshot(t.rts) {
		if !c.TS.After(p.BreachTS) {
			continue
		}
		if math.Abs(c.Low-p.Price)/p.Price <= t.tolerance && c.Close > p.Price {
			rts = RetestSignal{Level: p.Price, Kind: RetestRTS}
			rtsOK = true
			confirmedRTS = append(confirmedRTS, p)
		}
	}
	t.rts = removePending(t.rts, confirmedRTS)

	var confirmedSTR []PendingLevel
	for _, p := range snapshot(t.str) {
		if !c.TS.After(p.BreachTS) {
			continue
		}
		if math.Abs(c.High-p.Price)/p.Price <= t.tolerance && c.Close < p.Price {
			str = RetestSignal{Level: p.Price, Kind: RetestSTR}
			strOK = true
			confirmedSTR = append(confirmedSTR, p)
		}
	}
	t.str = removePending(t.str, confirmedSTR)

	return rts, rtsOK, str, strOK
}

// PendingRTS returns the number of unconfirmed resistance-turned-support levels.
func (t *Tracker) PendingRTS() int { return len(t.rts) }

// PendingSTR returns the number of unconfirmed support-turned-resistance levels.
func (t *Tracker) PendingSTR() int { return len(t.str) }

// Pending returns copies of both pending sets for snapshotting.
func (t *Tracker) Pending() (rts, str []PendingLevel) {
	return snapshot(t.rts), snapshot(t.str)
}

// SetPending replaces both pending sets, used when restoring a snapshot.
func (t *Tracker) SetPending(rts, str []PendingLevel) {
	t.rts = snapshot(rts)
	t.str = snapshot(str)
}

func addPending(set []PendingLevel, p PendingLevel) []PendingLevel {
	for _, q := range set {
		if q.Price == p.Price && q.BreachTS.Equal(p.BreachTS) {
			return set
		}
	}
	return append(set, p)
}

func snapshot(set []PendingLevel) []PendingLevel {
	if set == nil {
		return nil
	}
	return append([]PendingLevel(nil), set...)
}

func removePending(set, remove []PendingLevel) []PendingLevel {
	if len(remove) == 0 {
		return set
	}
	kept := set[:0]
	for _, q := range set {
		removed := false
		for _, r := range remove {
			if q.Price == r.Price && q.BreachTS.Equal(r.BreachTS) {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, q)
		}
	}
	return kept
}
