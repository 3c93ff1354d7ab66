package tp_sl

import (
	"time"

	"tradewatch/src/model"
)

// breakevenBufferPct keeps the breakeven stop strictly on the protective
// side of entry, so a flat retrace to exactly 0% does not close the trade.
const breakevenBufferPct = 0.05

// EarlyMomentum gives a fresh trade one window to reach the momentum
// threshold.
//
// Before detection:
// - gate: planned static stop still protects the trade
// - threshold reached: stop moves to breakeven, momentum flag set for good
// - window expired below threshold: immediate close as a low-quality signal
//
// After detection only the breakeven stop is checked.
type EarlyMomentum struct {
	Window       time.Duration
	ThresholdPct float64
}

func (*EarlyMomentum) Name() string { return model.RiskStrategyEarlyMomentum }

func (e *EarlyMomentum) Evaluate(trade *model.Trade, price, pnlPct float64, now time.Time) Verdict {
	if trade.MomentumDetected {
		if trade.BreakevenPrice != nil {
			be := *trade.BreakevenPrice
			if trade.IsLong() {
				if price <= be {
					return Verdict{Close: true, Reason: ReasonBreakeven}
				}
			} else if price >= be {
				return Verdict{Close: true, Reason: ReasonBreakeven}
			}
		}
		return Verdict{}
	}

	// Threshold first: a tick landing just past the window boundary still
	// counts when the move itself qualifies.
	if pnlPct >= e.ThresholdPct {
		trade.MomentumDetected = true
		trade.BreakevenSet = true
		be := breakevenFor(trade)
		trade.BreakevenPrice = &be
		return Verdict{}
	}

	if now.Sub(trade.EntryTime) >= e.Window {
		return Verdict{Close: true, Reason: ReasonLowQuality}
	}

	if crossed, reason := staticStopCrossed(trade, price, pnlPct); crossed {
		return Verdict{Close: true, Reason: reason}
	}
	return Verdict{}
}

func breakevenFor(trade *model.Trade) float64 {
	if trade.IsLong() {
		return trade.EntryPrice * (1 - breakevenBufferPct/100)
	}
	return trade.EntryPrice * (1 + breakevenBufferPct/100)
}
