package tp_sl

import (
	"time"

	"tradewatch/src/model"
)

// Verdict is the outcome of one evaluator pass for one tick.
type Verdict struct {
	Close  bool
	Reason string
}

// Close reasons surfaced in logs and close records.
const (
	ReasonStopPrice    = "stop_price_crossed"
	ReasonStopPct      = "stop_pct_crossed"
	ReasonLowQuality   = "low_quality_signal"
	ReasonBreakeven    = "breakeven_stop"
	ReasonTrailingStop = "trailing_stop"
)

// Evaluator decides keep-open vs close for one trade on one tick. Evaluators
// are pure in the I/O sense: they read and mutate only the trade they are
// handed.
type Evaluator interface {
	Name() string
	Evaluate(trade *model.Trade, price, pnlPct float64, now time.Time) Verdict
}

// Registry is the closed strategy table. Unknown strategy names fall back to
// the static evaluator, which only honors the planned stop.
type Registry struct {
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return NewRegistryWithConfig(GetConfig())
}

func NewRegistryWithConfig(cfg Config) *Registry {
	return &Registry{
		evaluators: map[string]Evaluator{
			model.RiskStrategyStatic: &StaticStop{},
			model.RiskStrategyEarlyMomentum: &EarlyMomentum{
				Window:       cfg.MomentumWindow,
				ThresholdPct: cfg.MomentumThresholdPct,
			},
			model.RiskStrategyAdaptiveTrail: &AdaptiveTrail{
				ActivationPct: cfg.TrailActivationPct,
				DistancePct:   cfg.TrailDistancePct,
			},
		},
	}
}

func (r *Registry) ForStrategy(name string) Evaluator {
	if ev, ok := r.evaluators[name]; ok {
		return ev
	}
	return r.evaluators[model.RiskStrategyStatic]
}

// staticStopCrossed reports whether the planned stop is breached. A stop
// price takes precedence; the percentage stop only applies when no price is
// planned.
func staticStopCrossed(trade *model.Trade, price, pnlPct float64) (bool, string) {
	if trade.StopLossPrice != nil && *trade.StopLossPrice > 0 {
		stop := *trade.StopLossPrice
		if trade.IsLong() {
			if price <= stop {
				return true, ReasonStopPrice
			}
		} else if price >= stop {
			return true, ReasonStopPrice
		}
		return false, ""
	}

	if trade.StopLossPct > 0 && pnlPct <= -trade.StopLossPct {
		return true, ReasonStopPct
	}
	return false, ""
}
