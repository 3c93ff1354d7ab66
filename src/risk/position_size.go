package risk

import (
	"context"
	"fmt"

	"tradewatch/src/model"
	"tradewatch/src/utils"
)

// ----- position sizing -----

// PositionSizeMultiplier maps a key's health to a sizing factor in [0, 1].
// Keys with no history size at 1.0; paused and blacklisted keys size at 0.
// Otherwise the profile base is scaled down by status and performance
// penalties and nudged up by a bounded Kelly term.
func (b *CircuitBreaker) PositionSizeMultiplier(ctx context.Context, symbol, direction, source string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	health, err := b.healthRepo.FindByKey(ctx, symbol, direction, source)
	if err != nil {
		return 0, fmt.Errorf("asset health lookup failed: %w", err)
	}
	if health == nil {
		return 1.0, nil
	}

	return multiplierFor(health, b.cfg.MinSample), nil
}

func multiplierFor(health *model.AssetHealth, minSample int) float64 {
	switch health.Status {
	case model.AssetStatusPaused, model.AssetStatusBlacklisted:
		return 0
	}

	profile := ProfileFor(health.RiskProfile)

	mult := profile.BaseSizeMultiplier
	mult *= statusPenalty(health.Status)
	mult *= consecutiveLossPenalty(health.ConsecutiveLosses)
	mult *= drawdownPenalty(health.MaxDrawdownPct)
	mult *= kellyBoost(health, minSample)

	return utils.ClampFloat(mult, 0, 1)
}

// statusPenalty halves sizing while a key is proving itself in recovery.
func statusPenalty(status string) float64 {
	if status == model.AssetStatusRecovery {
		return 0.5
	}
	return 1.0
}

// consecutiveLossPenalty shaves 10% per loss past the first, floored at 0.5.
func consecutiveLossPenalty(losses int) float64 {
	if losses < 2 {
		return 1.0
	}
	return utils.ClampFloat(1-0.1*float64(losses-1), 0.5, 1)
}

func drawdownPenalty(drawdownPct float64) float64 {
	switch {
	case drawdownPct >= 10:
		return 0.6
	case drawdownPct >= 5:
		return 0.8
	default:
		return 1.0
	}
}

// kellyBoost rewards keys with a genuine statistical edge. The Kelly
// fraction W - (1-W)/R is clamped to [0, 0.5] before being applied, so the
// boost can raise sizing by at most half and never reduce it. Keys without
// enough history get no boost.
func kellyBoost(health *model.AssetHealth, minSample int) float64 {
	if health.SampleSize < minSample {
		return 1.0
	}
	if health.AvgRiskReward <= 0 {
		return 1.0
	}

	w := health.WinRate20 / 100
	kelly := w - (1-w)/health.AvgRiskReward
	return 1 + utils.ClampFloat(kelly, 0, 0.5)
}
