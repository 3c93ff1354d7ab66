package model

import "time"

const (
	TradeStatusActive    = "active"
	TradeStatusCompleted = "completed"
)

const (
	TradeDirectionLong  = "long"
	TradeDirectionShort = "short"
)

// Outcome values written when a trade is closed.
const (
	OutcomeTP1     = "tp1"
	OutcomeTP2     = "tp2"
	OutcomeTP3     = "tp3"
	OutcomeSL      = "sl"
	OutcomeTimeout = "timeout"
)

// Risk-strategy variants. Each maps to one exit evaluator in tp_sl.
const (
	RiskStrategyStatic        = "static"
	RiskStrategyEarlyMomentum = "early_momentum"
	RiskStrategyAdaptiveTrail = "adaptive_trail"
)

// Momentum states for the adaptive trailing stop. Strictly advancing:
// pre_tp1 -> tp1_tp2 -> post_tp2, never backwards.
const (
	MomentumStatePreTP1  = "pre_tp1"
	MomentumStateTP1TP2  = "tp1_tp2"
	MomentumStatePostTP2 = "post_tp2"
)

// Trade is an open or closed position tracked by the engine. While active it
// is owned by the tracker: only tick processing and the evaluators it invokes
// mutate it, never concurrently for the same trade.
type Trade struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	TradeID string `gorm:"size:100;uniqueIndex" json:"trade_id"`

	// SignalSymbol is the symbol as the signal source sent it
	// (e.g. "BINANCE:BTCUSDT.P"); Symbol is the venue-neutral trading
	// symbol the engine subscribes with (e.g. "BTCUSDT").
	SignalSymbol string `gorm:"size:60" json:"signal_symbol"`
	Symbol       string `gorm:"size:50;index" json:"symbol"`
	Direction    string `gorm:"size:10;not null" json:"direction"`
	Source       string `gorm:"size:60;index" json:"source"`

	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`

	RiskStrategy string `gorm:"size:30;not null;default:static" json:"risk_strategy"`

	// Planned exits. StopLossPrice is preferred when set; StopLossPct is
	// the fallback. TP levels are percentage thresholds from entry.
	TP1Pct        float64  `json:"tp1_pct"`
	TP2Pct        float64  `json:"tp2_pct"`
	TP3Pct        float64  `json:"tp3_pct"`
	StopLossPrice *float64 `json:"stop_loss_price,omitempty"`
	StopLossPct   float64  `json:"stop_loss_pct"`

	// Trailing configuration. VolatilityMult is stamped from the
	// symbol_volatility table when the trade enters tracking so the
	// evaluators stay free of I/O.
	TrailActivationPct float64 `json:"trail_activation_pct"`
	TrailDistancePct   float64 `json:"trail_distance_pct"`
	VolatilityMult     float64 `gorm:"default:1" json:"volatility_mult"`

	// Running excursions, updated every processed tick. LastPnlPct is the
	// PnL at the most recent processed tick; the timeout sweep uses it as
	// the final PnL when a trade exceeds the age horizon.
	MaxFavorablePct float64 `json:"max_favorable_pct"`
	MaxAdversePct   float64 `json:"max_adverse_pct"`
	LastPnlPct      float64 `json:"last_pnl_pct"`

	// Per-level hit metadata. Write-once: set on first crossing.
	TP1Hit            bool       `json:"tp1_hit"`
	TP1HitAt          *time.Time `json:"tp1_hit_at,omitempty"`
	TP1HitPrice       *float64   `json:"tp1_hit_price,omitempty"`
	TP1ExcursionAtHit *float64   `json:"tp1_excursion_at_hit,omitempty"`
	TP2Hit            bool       `json:"tp2_hit"`
	TP2HitAt          *time.Time `json:"tp2_hit_at,omitempty"`
	TP2HitPrice       *float64   `json:"tp2_hit_price,omitempty"`
	TP2ExcursionAtHit *float64   `json:"tp2_excursion_at_hit,omitempty"`
	TP3Hit            bool       `json:"tp3_hit"`
	TP3HitAt          *time.Time `json:"tp3_hit_at,omitempty"`
	TP3HitPrice       *float64   `json:"tp3_hit_price,omitempty"`
	SLHitPrice        *float64   `json:"sl_hit_price,omitempty"`

	// Early-momentum filter state.
	MomentumDetected bool     `json:"momentum_detected"`
	BreakevenSet     bool     `json:"breakeven_set"`
	BreakevenPrice   *float64 `json:"breakeven_price,omitempty"`

	// Adaptive trailing state. HighWaterPrice holds the best price reached
	// in the trade's favor (lowest for shorts).
	MomentumState  string   `gorm:"size:20;default:pre_tp1" json:"momentum_state"`
	TrailActive    bool     `json:"trail_active"`
	HighWaterPrice *float64 `json:"high_water_price,omitempty"`

	Status      string     `gorm:"size:20;not null;default:active;index" json:"status"`
	Outcome     string     `gorm:"size:20" json:"outcome,omitempty"`
	FinalPnlPct *float64   `json:"final_pnl_pct,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t *Trade) IsLong() bool {
	return t.Direction == TradeDirectionLong
}

// PnlPercent returns the signed percentage move of price against the entry,
// positive when the trade is in profit for its direction.
func (t *Trade) PnlPercent(price float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	if t.IsLong() {
		return (price - t.EntryPrice) / t.EntryPrice * 100
	}
	return (t.EntryPrice - price) / t.EntryPrice * 100
}
