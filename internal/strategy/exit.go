package strategy

import (
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// EvaluateExit checks an open position's stop-loss and take-profit against
// the current LTF candle. The stop-loss is checked first: when a single
// candle's range spans both levels, the stop always wins.
func EvaluateExit(c model.Candle, pos *model.OpenPosition) (exitPrice float64, result model.TradeResult, ok bool) {
	switch pos.Side {
	case model.SideLong:
		if c.Low <= pos.StopLoss {
			return pos.StopLoss, model.ResultLoss, true
		}
		if c.High >= pos.TakeProfit {
			return pos.TakeProfit, model.ResultWin, true
		}
	case model.SideShort:
		if c.High >= pos.StopLoss {
			return pos.StopLoss, model.ResultLoss, true
		}
		if c.Low <= pos.TakeProfit {
			return pos.TakeProfit, model.ResultWin, true
		}
	}
	return 0, "", false
}
