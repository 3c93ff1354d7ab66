package tp_sl

import (
	"time"

	"tradewatch/src/model"
)

// StaticStop closes when the planned stop is crossed. No internal state:
// the same trade and price always produce the same verdict.
type StaticStop struct{}

func (*StaticStop) Name() string { return model.RiskStrategyStatic }

func (*StaticStop) Evaluate(trade *model.Trade, price, pnlPct float64, now time.Time) Verdict {
	if crossed, reason := staticStopCrossed(trade, price, pnlPct); crossed {
		return Verdict{Close: true, Reason: reason}
	}
	return Verdict{}
}
