package model

import "time"

// SymbolVolatility holds the per-symbol volatility multiplier consumed by the
// adaptive trailing stop. Rows are refreshed by the volatility command from
// hourly OHLCV history.
type SymbolVolatility struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"size:50;not null;uniqueIndex" json:"symbol"`
	ATRPct     float64   `gorm:"column:atr_pct" json:"atr_pct"`
	Multiplier float64   `gorm:"not null;default:1" json:"multiplier"`
	Candles    int       `json:"candles"`
	Timeframe  string    `gorm:"size:10;default:1h" json:"timeframe"`
	ComputedAt time.Time `json:"computed_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SymbolVolatility) TableName() string {
	return "symbol_volatility"
}
