// Package tfbuilder provides an incremental timeframe resampler.
// It consumes closed trade-timeframe candles and maintains "forming"
// higher-timeframe candle states, updated in O(1) per candle per TF. When a
// TF bucket closes (a candle arrives in a new bucket), the previous TF
// candle is finalized and emitted.
package tfbuilder

import (
	"log"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// tfState holds the forming candle state for one (symbol, TF) pair.
type tfState struct {
	bucket  int64 // bucket start = ts - ts%tf (Unix seconds)
	candle  model.Candle
	started bool
}

// Builder resamples base-TF candles into the configured higher timeframes.
// Single consumer: all methods must be called from one goroutine.
type Builder struct {
	baseTF int   // input timeframe in seconds
	tfs    []int // output timeframes in seconds, each a multiple of baseTF

	// Per-TF state, keyed by symbol: states[tfIdx][symbol] → *tfState
	states []map[string]*tfState

	// Staleness validation: reject candles whose bucket is behind the
	// forming bucket by more than this. Zero disables the check.
	StaleTolerance time.Duration

	// Hooks
	OnTFCandle    func(c model.Candle) // called on each finalized TF candle
	OnStaleCandle func(symbol string, tf int)
}

// New creates a builder resampling baseTF-second candles into tfs.
func New(baseTF int, tfs []int) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 8)
	}
	return &Builder{
		baseTF:         baseTF,
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Duration(baseTF) * time.Second,
	}
}

// TFs returns the configured output timeframes.
func (b *Builder) TFs() []int { return b.tfs }

// Process handles a single base-TF candle against all output TFs.
// Hot path, O(1) per TF. Finalized and forming snapshots are both emitted
// on outCh; consumers that only want closed candles filter on Forming.
func (b *Builder) Process(c model.Candle, outCh chan<- model.Candle) {
	if c.TF != b.baseTF {
		log.Printf("[tfbuilder] dropping candle with tf=%d, want %d", c.TF, b.baseTF)
		return
	}
	ts := c.TS.Unix()

	for i, tf := range b.tfs {
		tf64 := int64(tf)
		bucket := ts - (ts % tf64)

		st, exists := b.states[i][c.Symbol]

		// Late candles behind the forming bucket would corrupt an already
		// advancing aggregate.
		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > b.StaleTolerance {
				if b.OnStaleCandle != nil {
					b.OnStaleCandle(c.Symbol, tf)
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			st.candle.Forming = false
			emit(outCh, st.candle)
			if b.OnTFCandle != nil {
				b.OnTFCandle(st.candle)
			}
			exists = false
		}

		if !exists {
			ns := &tfState{
				bucket:  bucket,
				started: true,
				candle: model.Candle{
					Symbol:  c.Symbol,
					TF:      tf,
					TS:      time.Unix(bucket, 0).UTC(),
					Open:    c.Open,
					High:    c.High,
					Low:     c.Low,
					Close:   c.Close,
					Volume:  c.Volume,
					Forming: true,
				},
			}
			b.states[i][c.Symbol] = ns
			emit(outCh, ns.candle)
			continue
		}

		// Same bucket — merge OHLCV.
		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume

		// Forming snapshot so live consumers can peek at the in-progress
		// candle. Copied so callers can hold the value across updates.
		snap := *fc
		emit(outCh, snap)
	}
}

// Flush finalizes and emits all forming candles. Called on shutdown.
func (b *Builder) Flush(outCh chan<- model.Candle) {
	for i := range b.tfs {
		for symbol, st := range b.states[i] {
			if st.started {
				st.candle.Forming = false
				emit(outCh, st.candle)
				if b.OnTFCandle != nil {
					b.OnTFCandle(st.candle)
				}
			}
			delete(b.states[i], symbol)
		}
	}
}

func emit(outCh chan<- model.Candle, c model.Candle) {
	select {
	case outCh <- c:
	default:
		log.Printf("[tfbuilder] outCh full, dropping candle %s tf=%d ts=%v", c.Symbol, c.TF, c.TS)
	}
}
