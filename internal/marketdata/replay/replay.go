// Package replay warms the analysis pipeline from stored history. On
// startup the engine's candle windows are empty; replaying the most recent
// candles per timeframe rebuilds them before live data resumes.
package replay

import (
	"fmt"
	"log"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// Backfiller reads historical candles through a CandleReader port and
// replays them, per timeframe in ascending timestamp order, into a sink.
type Backfiller struct {
	reader model.CandleReader
}

// New creates a Backfiller backed by a candle reader.
func New(reader model.CandleReader) *Backfiller {
	return &Backfiller{reader: reader}
}

// Run replays all candles for the given symbol and timeframes that closed
// after afterTS (Unix seconds). Timeframes are replayed longest-first so HTF
// structure exists before MTF/LTF evaluation, matching the live delivery
// order. sink is called with Forming forced to false.
func (b *Backfiller) Run(symbol string, tfs []int, afterTS int64, sink func(c model.Candle)) error {
	ordered := append([]int(nil), tfs...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j] > ordered[j-1]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	total := 0
	for _, tf := range ordered {
		candles, err := b.reader.ReadCandles(symbol, tf, afterTS)
		if err != nil {
			return fmt.Errorf("backfill %s tf=%d: %w", symbol, tf, err)
		}
		for _, c := range candles {
			c.Forming = false
			sink(c)
		}
		total += len(candles)
	}

	log.Printf("[replay] backfilled %d candles for %s across %d TFs", total, symbol, len(ordered))
	return nil
}
