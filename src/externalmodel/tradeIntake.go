package externalmodel

import "time"

// TradeIntake is the payload the upstream strategy engine posts to start
// tracking a trade. Field names follow that engine's JSON contract, so this
// shape changes with the upstream, not with us.
type TradeIntake struct {
	TradeID string `json:"trade_id"`

	// Symbol is venue-qualified the way the upstream emits it,
	// e.g. "BINANCE:BTCUSDT.P".
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Source    string `json:"source"`

	EntryPrice float64    `json:"entry_price"`
	EntryTime  *time.Time `json:"entry_time,omitempty"`

	RiskStrategy string `json:"risk_strategy"`

	TP1Pct        float64  `json:"tp1_pct"`
	TP2Pct        float64  `json:"tp2_pct"`
	TP3Pct        float64  `json:"tp3_pct"`
	StopLossPrice *float64 `json:"stop_loss_price,omitempty"`
	StopLossPct   float64  `json:"stop_loss_pct"`

	TrailActivationPct float64 `json:"trail_activation_pct"`
	TrailDistancePct   float64 `json:"trail_distance_pct"`
}
