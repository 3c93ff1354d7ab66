package model

import "time"

// PriceSample is one processed tick retained for post-close simulation.
// Rows are ephemeral: the timeout checker deletes them once the owning trade
// has been completed for longer than the retention window.
type PriceSample struct {
	ID      uint    `gorm:"primaryKey" json:"id"`
	TradeID string  `gorm:"size:100;index" json:"trade_id"`
	Symbol  string  `gorm:"size:50;index" json:"symbol"`
	Price   float64 `json:"price"`
	PnlPct  float64 `json:"pnl_pct"`

	// Running excursions at sampling time, so replays can reconstruct the
	// trade's best and worst without walking every earlier sample.
	MaxFavorablePct float64 `json:"max_favorable_pct"`
	MaxAdversePct   float64 `json:"max_adverse_pct"`

	SampledAt time.Time `gorm:"index" json:"sampled_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (PriceSample) TableName() string {
	return "trade_price_samples"
}
