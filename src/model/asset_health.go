package model

import "time"

const (
	AssetStatusActive      = "active"
	AssetStatusPaused      = "paused"
	AssetStatusRecovery    = "recovery"
	AssetStatusBlacklisted = "blacklisted"
)

// Risk profiles assigned from observed win-rate and risk-reward. The profile
// selects the threshold set the circuit breaker enforces for the key.
const (
	RiskProfileHighWR   = "HIGH_WR"
	RiskProfileModerate = "MODERATE_WR"
	RiskProfileLowWR    = "LOW_WR"
	RiskProfileStandard = "STANDARD"
)

// AssetHealth is the circuit-breaker state for one
// (symbol, direction, source) combination. Created on first evaluation,
// updated after every completed trade for the key. A blacklist is terminal.
type AssetHealth struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Symbol    string `gorm:"size:50;not null;uniqueIndex:ux_asset_health_key,priority:1" json:"symbol"`
	Direction string `gorm:"size:10;not null;uniqueIndex:ux_asset_health_key,priority:2" json:"direction"`
	Source    string `gorm:"size:60;not null;uniqueIndex:ux_asset_health_key,priority:3" json:"source"`

	Status      string `gorm:"size:20;not null;default:active;index" json:"status"`
	RiskProfile string `gorm:"size:20;not null;default:STANDARD" json:"risk_profile"`

	// Rolling metrics over the evaluation window, refreshed each evaluation.
	SampleSize        int     `json:"sample_size"`
	WinRate20         float64 `json:"win_rate_20"`
	AvgRiskReward     float64 `json:"avg_risk_reward"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	RecentPnlPct      float64 `json:"recent_pnl_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`

	// Pause bookkeeping. PauseCount survives resume; when it exceeds the
	// profile limit the next trip blacklists instead of pausing.
	PauseCount  int        `json:"pause_count"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	PauseReason string     `gorm:"size:255" json:"pause_reason,omitempty"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`

	// Recovery progress since the pause window elapsed.
	RecoveryStartAt    *time.Time `json:"recovery_start_at,omitempty"`
	RecoveryTrades     int        `json:"recovery_trades"`
	RecoveryWins       int        `json:"recovery_wins"`
	RecoveryConsecWins int        `json:"recovery_consec_wins"`
	RecoveryPnlPct     float64    `json:"recovery_pnl_pct"`

	BlacklistedAt   *time.Time `json:"blacklisted_at,omitempty"`
	BlacklistReason string     `gorm:"size:255" json:"blacklist_reason,omitempty"`

	LastTradeAt *time.Time `json:"last_trade_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (AssetHealth) TableName() string {
	return "asset_health"
}

func (a *AssetHealth) Key() string {
	return a.Symbol + "|" + a.Direction + "|" + a.Source
}
