package tp_sl

import (
	"time"

	"tradewatch/src/model"
)

// Trailing-distance multipliers per momentum state: wide before TP1 so early
// noise does not shake the trade out, tight after TP2 to defend the gain.
var trailStateMult = map[string]float64{
	model.MomentumStatePreTP1:  1.5,
	model.MomentumStateTP1TP2:  1.0,
	model.MomentumStatePostTP2: 0.6,
}

// AdaptiveTrail trails a dynamic stop behind the trade's best price.
//
// Order of checks per tick:
// - original static stop, never overridden by the trail
// - momentum state advances off the TP hit flags (monotonic)
// - water mark extends (high for longs, low for shorts)
// - once the activation profit has been seen, the stop sits at
//   water_mark x (1 -/+ distance%), distance scaled by momentum state and
//   the instrument's volatility multiplier
type AdaptiveTrail struct {
	ActivationPct float64
	DistancePct   float64
}

func (*AdaptiveTrail) Name() string { return model.RiskStrategyAdaptiveTrail }

func (a *AdaptiveTrail) Evaluate(trade *model.Trade, price, pnlPct float64, now time.Time) Verdict {
	if crossed, reason := staticStopCrossed(trade, price, pnlPct); crossed {
		return Verdict{Close: true, Reason: reason}
	}

	advanceMomentumState(trade)
	extendWaterMark(trade, price)

	activation := trade.TrailActivationPct
	if activation <= 0 {
		activation = a.ActivationPct
	}
	if !trade.TrailActive && pnlPct >= activation {
		trade.TrailActive = true
	}
	if !trade.TrailActive || trade.HighWaterPrice == nil {
		return Verdict{}
	}

	dist := a.effectiveDistancePct(trade)
	mark := *trade.HighWaterPrice
	if trade.IsLong() {
		stop := mark * (1 - dist/100)
		if price <= stop {
			return Verdict{Close: true, Reason: ReasonTrailingStop}
		}
	} else {
		stop := mark * (1 + dist/100)
		if price >= stop {
			return Verdict{Close: true, Reason: ReasonTrailingStop}
		}
	}
	return Verdict{}
}

// effectiveDistancePct is the trade's base distance scaled by the momentum
// state multiplier and the per-instrument volatility multiplier.
func (a *AdaptiveTrail) effectiveDistancePct(trade *model.Trade) float64 {
	dist := trade.TrailDistancePct
	if dist <= 0 {
		dist = a.DistancePct
	}

	mult, ok := trailStateMult[trade.MomentumState]
	if !ok {
		mult = trailStateMult[model.MomentumStatePreTP1]
	}

	vol := trade.VolatilityMult
	if vol <= 0 {
		vol = 1
	}
	return dist * mult * vol
}

// advanceMomentumState walks the pre_tp1 -> tp1_tp2 -> post_tp2 ladder. TP
// flags are never cleared, so the state only ever moves forward.
func advanceMomentumState(trade *model.Trade) {
	if trade.MomentumState == "" {
		trade.MomentumState = model.MomentumStatePreTP1
	}
	if trade.TP1Hit && trade.MomentumState == model.MomentumStatePreTP1 {
		trade.MomentumState = model.MomentumStateTP1TP2
	}
	if trade.TP2Hit && trade.MomentumState == model.MomentumStateTP1TP2 {
		trade.MomentumState = model.MomentumStatePostTP2
	}
}

// extendWaterMark records the best price seen: highest for longs, lowest for
// shorts. Seeded from the first observed tick. The pointer is replaced, not
// written through, so snapshots of the trade stay stable.
func extendWaterMark(trade *model.Trade, price float64) {
	if trade.HighWaterPrice == nil {
		p := price
		trade.HighWaterPrice = &p
		return
	}
	if trade.IsLong() {
		if price > *trade.HighWaterPrice {
			p := price
			trade.HighWaterPrice = &p
		}
	} else if price < *trade.HighWaterPrice {
		p := price
		trade.HighWaterPrice = &p
	}
}
