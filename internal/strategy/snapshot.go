package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

// snapshotVersion is bumped on any incompatible layout change.
const snapshotVersion = 1

// Snapshot is the serialized analysis state of one Engine. Candle buffers are
// not part of it: on restart they are refilled by the store backfill, which
// is cheaper than persisting every window on each checkpoint.
type Snapshot struct {
	Version int    `json:"version"`
	Symbol  string `json:"symbol"`

	Regime   structure.Regime       `json:"regime"`
	HTFHighs []structure.SwingPoint `json:"htf_highs,omitempty"`
	HTFLows  []structure.SwingPoint `json:"htf_lows,omitempty"`

	LastResistance structure.SwingPoint `json:"last_resistance"`
	HaveResistance bool                 `json:"have_resistance"`
	LastSupport    structure.SwingPoint `json:"last_support"`
	HaveSupport    bool                 `json:"have_support"`

	BullishFVG structure.Level `json:"bullish_fvg"`
	BearishFVG structure.Level `json:"bearish_fvg"`

	PendingRTS []structure.PendingLevel `json:"pending_rts,omitempty"`
	PendingSTR []structure.PendingLevel `json:"pending_str,omitempty"`

	Position *model.OpenPosition `json:"position,omitempty"`
}

// Snapshot captures the engine's analysis state for checkpointing.
func (e *Engine) Snapshot() *Snapshot {
	rts, str := e.tracker.Pending()
	snap := &Snapshot{
		Version:        snapshotVersion,
		Symbol:         e.symbol,
		Regime:         e.regime,
		HTFHighs:       append([]structure.SwingPoint(nil), e.htfHighs...),
		HTFLows:        append([]structure.SwingPoint(nil), e.htfLows...),
		LastResistance: e.lastRes,
		HaveResistance: e.haveRes,
		LastSupport:    e.lastSup,
		HaveSupport:    e.haveSup,
		BullishFVG:     e.bullFVG,
		BearishFVG:     e.bearFVG,
		PendingRTS:     rts,
		PendingSTR:     str,
	}
	if e.pos != nil {
		p := *e.pos
		snap.Position = &p
	}
	return snap
}

// SnapshotJSON captures the engine state as a JSON document.
func (e *Engine) SnapshotJSON() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// Restore loads a snapshot into the engine. The symbol must match; a version
// mismatch is an error and the caller should cold-start instead.
func (e *Engine) Restore(snap *Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	if snap.Symbol != e.symbol {
		return fmt.Errorf("snapshot for %q, engine is %q", snap.Symbol, e.symbol)
	}

	e.regime = snap.Regime
	if e.regime == "" {
		e.regime = structure.RegimeRanging
	}
	e.htfHighs = append([]structure.SwingPoint(nil), snap.HTFHighs...)
	e.htfLows = append([]structure.SwingPoint(nil), snap.HTFLows...)
	e.lastRes, e.haveRes = snap.LastResistance, snap.HaveResistance
	e.lastSup, e.haveSup = snap.LastSupport, snap.HaveSupport
	e.bullFVG = snap.BullishFVG
	e.bearFVG = snap.BearishFVG
	e.tracker.SetPending(snap.PendingRTS, snap.PendingSTR)
	e.pos = nil
	if snap.Position != nil {
		p := *snap.Position
		e.pos = &p
	}
	return nil
}

// RestoreJSON loads a JSON snapshot produced by SnapshotJSON.
func (e *Engine) RestoreJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return e.Restore(&snap)
}
