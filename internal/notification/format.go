package notification

import (
	"fmt"
	"strings"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// SignalAlert formats a signal stream event into an Alert ready for
// delivery. Returns false for events with no recognizable payload.
func SignalAlert(ev *model.SignalEvent) (Alert, bool) {
	switch {
	case ev.Type == model.EventEntry && ev.Entry != nil:
		return entryAlert(ev.Entry), true
	case ev.Type == model.EventExit && ev.Exit != nil:
		return exitAlert(ev.Exit), true
	}
	return Alert{}, false
}

func entryAlert(s *model.EntrySignal) Alert {
	title := fmt.Sprintf("NEW %s SIGNAL for %s!", strings.ToUpper(string(s.Side)), s.Symbol)
	msg := fmt.Sprintf(
		"Entry Price: %.5f\nStop Loss: %.5f\nTake Profit: %.5f\nReason: %s\nAlways manage your risk!",
		s.EntryPrice, s.StopLoss, s.TakeProfit, s.Reason,
	)
	return Alert{Level: AlertInfo, Title: title, Message: msg, Symbol: s.Symbol, Event: model.EventEntry}
}

func exitAlert(s *model.ExitSignal) Alert {
	level := AlertInfo
	if s.Result == model.ResultLoss {
		level = AlertWarning
	}
	title := fmt.Sprintf("Trade CLOSED: %s %s for %s", s.Side, s.Result, s.Symbol)
	msg := fmt.Sprintf("Exit Price: %.5f\nPnL: %.5f", s.ExitPrice, s.PnL)
	return Alert{Level: level, Title: title, Message: msg, Symbol: s.Symbol, Event: model.EventExit}
}
