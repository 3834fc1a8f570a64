package model

import (
	"encoding/json"
	"time"
)

// Side represents a trade direction.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// TradeResult classifies how a position was closed.
type TradeResult string

const (
	ResultWin  TradeResult = "Win"
	ResultLoss TradeResult = "Loss"
)

// EntrySignal is emitted when an LTF candle qualifies as a long or short
// entry. EntryPrice is the LTF close; StopLoss and TakeProfit are derived
// from the configured risk parameters at entry time.
type EntrySignal struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	TS         time.Time `json:"ts"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Reason     string    `json:"reason"` // e.g. "4h Demand Retest"
}

// JSON returns the JSON-encoded signal.
func (s *EntrySignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// ExitSignal is emitted when an open position's stop-loss or take-profit
// is hit by the current LTF candle.
type ExitSignal struct {
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	TS        time.Time   `json:"ts"`
	ExitPrice float64     `json:"exit_price"`
	Result    TradeResult `json:"result"`
	PnL       float64     `json:"pnl"` // quote-currency per unit
}

// JSON returns the JSON-encoded signal.
func (s *ExitSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Signal event types.
const (
	EventEntry = "entry"
	EventExit  = "exit"
)

// SignalEvent is the envelope written to (and read from) the Redis signal
// stream. Exactly one of Entry or Exit is set, matching Type.
type SignalEvent struct {
	Type  string       `json:"type"` // EventEntry or EventExit
	Entry *EntrySignal `json:"entry,omitempty"`
	Exit  *ExitSignal  `json:"exit,omitempty"`
}

// JSON marshals the event, ignoring errors (fields are always marshalable).
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Symbol returns the instrument the event refers to.
func (e *SignalEvent) Symbol() string {
	switch {
	case e.Entry != nil:
		return e.Entry.Symbol
	case e.Exit != nil:
		return e.Exit.Symbol
	}
	return ""
}

// SignalStreamKey returns the Redis stream key for a symbol's signals.
func SignalStreamKey(symbol string) string {
	return "signals:" + symbol
}
