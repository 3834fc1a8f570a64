package model

import "time"

// OpenPosition is the single tracked position for an instrument.
// The engine enforces at most one open position per symbol at any time.
type OpenPosition struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
}

// PnLAt computes the per-unit profit or loss if the position were closed
// at the given price.
func (p *OpenPosition) PnLAt(price float64) float64 {
	if p.Side == SideShort {
		return p.EntryPrice - price
	}
	return price - p.EntryPrice
}
