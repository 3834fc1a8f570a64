package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV candle for a single instrument and timeframe.
// TF is the timeframe duration in seconds (e.g. 300 = 5 minutes).
// Prices are quote-currency float64: the engine's retest math is
// percentage-band arithmetic, not ledger accounting.
type Candle struct {
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"` // timeframe in seconds
	TS      time.Time `json:"ts"` // bucket open time (UTC, TF-aligned)
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Forming bool      `json:"forming"` // true while the bucket is still open
}

// StreamKey returns the Redis stream key: "candle:{TF}s:{symbol}".
func (c *Candle) StreamKey() string {
	return "candle:" + itoa(c.TF) + "s:" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// itoa is a minimal int-to-string without importing strconv in hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
