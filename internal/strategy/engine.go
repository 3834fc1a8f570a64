// Package strategy holds the decision layer: the per-instrument Engine that
// owns all mutable analysis state, and the entry/exit evaluators it drives.
//
// The Engine is single-threaded by contract. Callers feed it closed candles
// per timeframe in increasing timestamp order; out-of-order candles are
// dropped and counted, never applied. One evaluation loop per symbol, no
// shared mutation across symbols.
package strategy

import (
	"errors"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/buffer"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

// Config carries the tunable analysis and sizing parameters of one Engine.
type Config struct {
	HTFSwingWindow  int     // half-window for HTF swing confirmation
	MTFSRWindow     int     // half-window for MTF support/resistance
	SwingHistory    int     // most-recent-N swing points kept per type
	RetestTolerance float64 // fractional band for retest/zone touches
	SLPercent       float64 // stop distance from entry, fractional
	RRRatio         float64 // take-profit distance = risk * ratio
	BufferSize      int     // per-timeframe candle buffer capacity
}

// DefaultConfig returns the stock parameter set.
func DefaultConfig() Config {
	return Config{
		HTFSwingWindow:  2,
		MTFSRWindow:     5,
		SwingHistory:    5,
		RetestTolerance: 0.0005,
		SLPercent:       0.005,
		RRRatio:         1.5,
		BufferSize:      100,
	}
}

// Engine is the per-instrument analysis and decision state machine.
//
// All fields are owned by the single goroutine calling the OnXXXCandle
// methods; there is no internal locking.
type Engine struct {
	symbol string
	cfg    Config

	htf *buffer.Buffer
	mtf *buffer.Buffer
	ltf *buffer.Buffer

	htfHighs []structure.SwingPoint
	htfLows  []structure.SwingPoint
	regime   structure.Regime

	lastRes structure.SwingPoint
	haveRes bool
	lastSup structure.SwingPoint
	haveSup bool

	tracker *structure.Tracker

	// FVG levels persist until superseded by a newer gap of the same kind;
	// retest levels are recomputed fresh on every MTF candle.
	bullFVG structure.Level
	bearFVG structure.Level
	rts     structure.Level
	str     structure.Level

	pos *model.OpenPosition

	// Optional observation hooks, invoked synchronously.
	OnSwing  func(tf int, kind string, sp structure.SwingPoint)
	OnRegime func(r structure.Regime)
	OnBOS    func(bos structure.BOS, c model.Candle)
	OnFVG    func(f structure.FVG)
	OnRetest func(sig structure.RetestSignal)
	OnDrop   func(tf int, c model.Candle)
}

// NewEngine creates an engine for one symbol with the given parameters.
func NewEngine(symbol string, cfg Config) *Engine {
	return &Engine{
		symbol:  symbol,
		cfg:     cfg,
		htf:     buffer.New(cfg.BufferSize),
		mtf:     buffer.New(cfg.BufferSize),
		ltf:     buffer.New(cfg.BufferSize),
		regime:  structure.RegimeRanging,
		tracker: structure.NewTracker(cfg.RetestTolerance),
	}
}

// Symbol returns the instrument this engine analyzes.
func (e *Engine) Symbol() string { return e.symbol }

// Regime returns the current HTF structure classification.
func (e *Engine) Regime() structure.Regime { return e.regime }

// Position returns the open position, or nil when flat.
func (e *Engine) Position() *model.OpenPosition { return e.pos }

// RiskParams returns the current tunable risk parameters.
func (e *Engine) RiskParams() (tolerance, slPct, rr float64) {
	return e.cfg.RetestTolerance, e.cfg.SLPercent, e.cfg.RRRatio
}

// SetRiskParams updates the tunable risk parameters. Takes effect from
// the next candle; the open position, if any, keeps its stops.
func (e *Engine) SetRiskParams(tolerance, slPct, rr float64) {
	e.cfg.RetestTolerance = tolerance
	e.cfg.SLPercent = slPct
	e.cfg.RRRatio = rr
	e.tracker.SetTolerance(tolerance)
}

// PendingLevels returns the sizes of the two retest pending sets.
func (e *Engine) PendingLevels() (rts, str int) {
	return e.tracker.PendingRTS(), e.tracker.PendingSTR()
}

// Levels returns the structural context the next entry decision would read.
func (e *Engine) Levels() Levels {
	supply, demand := e.zones()
	return Levels{
		Regime:     e.regime,
		Supply:     supply,
		Demand:     demand,
		BullishFVG: e.bullFVG,
		BearishFVG: e.bearFVG,
		RTS:        e.rts,
		STR:        e.str,
	}
}

// OnHTFCandle ingests a closed context-timeframe candle: swing confirmation,
// regime classification and break-of-structure detection.
func (e *Engine) OnHTFCandle(c model.Candle) (structure.BOS, bool) {
	if !e.append(e.htf, c) {
		return "", false
	}

	span := 2*e.cfg.HTFSwingWindow + 1
	if e.htf.Len() >= span {
		window := e.htf.Tail(span)
		if sp, ok := structure.FindSwingHigh(window, e.cfg.HTFSwingWindow); ok {
			e.htfHighs = appendSwing(e.htfHighs, sp, e.cfg.SwingHistory)
			if e.OnSwing != nil {
				e.OnSwing(c.TF, "high", sp)
			}
		}
		if sp, ok := structure.FindSwingLow(window, e.cfg.HTFSwingWindow); ok {
			e.htfLows = appendSwing(e.htfLows, sp, e.cfg.SwingHistory)
			if e.OnSwing != nil {
				e.OnSwing(c.TF, "low", sp)
			}
		}
	}

	prev := e.regime
	e.regime = structure.Classify(e.htfHighs, e.htfLows)
	if e.regime != prev && e.OnRegime != nil {
		e.OnRegime(e.regime)
	}

	lastHigh, haveHigh := lastSwing(e.htfHighs)
	lastLow, haveLow := lastSwing(e.htfLows)
	bos, ok := structure.DetectBOS(c, e.regime, lastHigh, haveHigh, lastLow, haveLow)
	if ok && e.OnBOS != nil {
		e.OnBOS(bos, c)
	}
	return bos, ok
}

// OnMTFCandle ingests a closed mid-timeframe candle: support/resistance
// tracking, fair value gap detection, and the retest state machine.
func (e *Engine) OnMTFCandle(c model.Candle) {
	if !e.append(e.mtf, c) {
		return
	}

	span := 2*e.cfg.MTFSRWindow + 1
	if e.mtf.Len() >= span {
		window := e.mtf.Tail(span)
		if sp, ok := structure.FindResistance(window, e.cfg.MTFSRWindow); ok {
			e.lastRes, e.haveRes = sp, true
			if e.OnSwing != nil {
				e.OnSwing(c.TF, "resistance", sp)
			}
		}
		if sp, ok := structure.FindSupport(window, e.cfg.MTFSRWindow); ok {
			e.lastSup, e.haveSup = sp, true
			if e.OnSwing != nil {
				e.OnSwing(c.TF, "support", sp)
			}
		}
	}

	if e.mtf.Len() >= 3 {
		triple := e.mtf.Tail(3)
		if f, ok := structure.DetectFVG(triple[0], triple[1], triple[2]); ok {
			switch f.Kind {
			case structure.FVGBullish:
				e.bullFVG = structure.Level{Price: f.Level, OK: true}
			case structure.FVGBearish:
				e.bearFVG = structure.Level{Price: f.Level, OK: true}
			}
			if e.OnFVG != nil {
				e.OnFVG(f)
			}
		}
	}

	// Retest levels do not carry over between MTF candles.
	e.rts = structure.Level{}
	e.str = structure.Level{}
	rts, rtsOK, str, strOK := e.tracker.Observe(c, e.lastRes, e.haveRes, e.lastSup, e.haveSup)
	if rtsOK {
		e.rts = structure.Level{Price: rts.Level, OK: true}
		if e.OnRetest != nil {
			e.OnRetest(rts)
		}
	}
	if strOK {
		e.str = structure.Level{Price: str.Level, OK: true}
		if e.OnRetest != nil {
			e.OnRetest(str)
		}
	}
}

// OnLTFCandle ingests a closed trade-timeframe candle and returns the entry
// and/or exit signal it produced. Entry is evaluated before exit, so a
// position opened on this candle can also be stopped out on it.
func (e *Engine) OnLTFCandle(c model.Candle) (*model.EntrySignal, *model.ExitSignal) {
	if !e.append(e.ltf, c) {
		return nil, nil
	}

	var entry *model.EntrySignal
	if e.pos == nil {
		if side, reason, ok := EvaluateEntry(c, e.Levels(), e.cfg.RetestTolerance); ok {
			price := c.Close
			sl, tp := deriveStops(side, price, e.cfg.SLPercent, e.cfg.RRRatio)
			e.pos = &model.OpenPosition{
				Symbol:     e.symbol,
				Side:       side,
				EntryTime:  c.TS,
				EntryPrice: price,
				StopLoss:   sl,
				TakeProfit: tp,
			}
			entry = &model.EntrySignal{
				Symbol:     e.symbol,
				Side:       side,
				TS:         c.TS,
				EntryPrice: price,
				StopLoss:   sl,
				TakeProfit: tp,
				Reason:     reason,
			}
		}
	}

	var exit *model.ExitSignal
	if e.pos != nil {
		if price, result, ok := EvaluateExit(c, e.pos); ok {
			exit = &model.ExitSignal{
				Symbol:    e.symbol,
				Side:      e.pos.Side,
				TS:        c.TS,
				ExitPrice: price,
				Result:    result,
				PnL:       e.pos.PnLAt(price),
			}
			e.pos = nil
		}
	}

	return entry, exit
}

// deriveStops computes fixed-percentage stop-loss and risk-multiple
// take-profit levels from the entry price.
func deriveStops(side model.Side, entry, slPct, rr float64) (sl, tp float64) {
	if side == model.SideLong {
		sl = entry * (1 - slPct)
		tp = entry + (entry-sl)*rr
		return sl, tp
	}
	sl = entry * (1 + slPct)
	tp = entry - (sl-entry)*rr
	return sl, tp
}

func (e *Engine) append(buf *buffer.Buffer, c model.Candle) bool {
	if err := buf.Append(c); err != nil {
		if errors.Is(err, buffer.ErrOutOfOrder) && e.OnDrop != nil {
			e.OnDrop(c.TF, c)
		}
		return false
	}
	return true
}

func (e *Engine) zones() (supply, demand structure.Level) {
	lastHigh, haveHigh := lastSwing(e.htfHighs)
	lastLow, haveLow := lastSwing(e.htfLows)
	return structure.Zones(lastHigh, haveHigh, lastLow, haveLow)
}

func appendSwing(hist []structure.SwingPoint, sp structure.SwingPoint, max int) []structure.SwingPoint {
	hist = append(hist, sp)
	if len(hist) > max {
		hist = hist[len(hist)-max:]
	}
	return hist
}

func lastSwing(hist []structure.SwingPoint) (structure.SwingPoint, bool) {
	if len(hist) == 0 {
		return structure.SwingPoint{}, false
	}
	return hist[len(hist)-1], true
}
