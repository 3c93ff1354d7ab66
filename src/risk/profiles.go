package risk

import (
	"time"

	"tradewatch/src/model"
)

// ----- profile thresholds -----

// ProfileThresholds is the enforcement rulebook one risk profile selects.
// Limits are trip points: reaching one pauses (or blacklists) the key.
type ProfileThresholds struct {
	Name string

	MaxConsecutiveLosses int
	MaxLossesIn10        int
	MaxDrawdownPct       float64
	Min10TradePnlPct     float64
	MinWinRatePct        float64
	MaxHourlyLossPct     float64
	MaxDailyLossPct      float64

	// BlacklistOnLossesIn10 skips the pause step for the losses-in-10
	// condition. Set for HIGH_WR: that many losses from a supposedly
	// high-accuracy key means the edge is gone, not wobbling.
	BlacklistOnLossesIn10 bool

	PauseDuration time.Duration
	MaxPauses     int

	RecoveryConsecWins int
	RecoveryWinRate10  float64
	RecoveryPnlPct     float64

	BaseSizeMultiplier float64
}

var profileTable = map[string]ProfileThresholds{
	model.RiskProfileHighWR: {
		Name:                  model.RiskProfileHighWR,
		MaxConsecutiveLosses:  6,
		MaxLossesIn10:         5,
		MaxDrawdownPct:        15,
		Min10TradePnlPct:      -10,
		MinWinRatePct:         50,
		MaxHourlyLossPct:      6,
		MaxDailyLossPct:       10,
		BlacklistOnLossesIn10: true,
		PauseDuration:         2 * time.Hour,
		MaxPauses:             3,
		RecoveryConsecWins:    2,
		RecoveryWinRate10:     50,
		RecoveryPnlPct:        2,
		BaseSizeMultiplier:    1.0,
	},
	model.RiskProfileModerate: {
		Name:                 model.RiskProfileModerate,
		MaxConsecutiveLosses: 5,
		MaxLossesIn10:        6,
		MaxDrawdownPct:       12,
		Min10TradePnlPct:     -8,
		MinWinRatePct:        45,
		MaxHourlyLossPct:     5,
		MaxDailyLossPct:      8,
		PauseDuration:        4 * time.Hour,
		MaxPauses:            3,
		RecoveryConsecWins:   2,
		RecoveryWinRate10:    45,
		RecoveryPnlPct:       1.5,
		BaseSizeMultiplier:   0.85,
	},
	// LOW_WR keys win rarely but big. They are allowed long loss runs and a
	// low win-rate floor; what kills them is drawdown.
	model.RiskProfileLowWR: {
		Name:                 model.RiskProfileLowWR,
		MaxConsecutiveLosses: 7,
		MaxLossesIn10:        8,
		MaxDrawdownPct:       15,
		Min10TradePnlPct:     -10,
		MinWinRatePct:        25,
		MaxHourlyLossPct:     6,
		MaxDailyLossPct:      10,
		PauseDuration:        4 * time.Hour,
		MaxPauses:            2,
		RecoveryConsecWins:   1,
		RecoveryWinRate10:    30,
		RecoveryPnlPct:       2,
		BaseSizeMultiplier:   0.7,
	},
	model.RiskProfileStandard: {
		Name:                 model.RiskProfileStandard,
		MaxConsecutiveLosses: 5,
		MaxLossesIn10:        6,
		MaxDrawdownPct:       10,
		Min10TradePnlPct:     -8,
		MinWinRatePct:        40,
		MaxHourlyLossPct:     5,
		MaxDailyLossPct:      8,
		PauseDuration:        4 * time.Hour,
		MaxPauses:            2,
		RecoveryConsecWins:   3,
		RecoveryWinRate10:    50,
		RecoveryPnlPct:       2,
		BaseSizeMultiplier:   0.8,
	},
}

// ProfileFor returns the threshold set for a profile name, defaulting to
// STANDARD for anything unknown.
func ProfileFor(name string) ProfileThresholds {
	if p, ok := profileTable[name]; ok {
		return p
	}
	return profileTable[model.RiskProfileStandard]
}

// classifyProfile assigns a profile from the observed window.
func classifyProfile(m windowMetrics) string {
	switch {
	case m.winRate >= 65 && m.avgRiskReward >= 1:
		return model.RiskProfileHighWR
	case m.winRate >= 50 && m.winRate < 65 && m.avgRiskReward >= 1 && m.avgRiskReward <= 2:
		return model.RiskProfileModerate
	case m.winRate < 50 && m.avgRiskReward >= 2:
		return model.RiskProfileLowWR
	default:
		return model.RiskProfileStandard
	}
}
