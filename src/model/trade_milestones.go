package model

import "time"

// TradeMilestones records, per trade, the first time each profit and drawdown
// percentage threshold was crossed. Threshold timestamps are write-once; the
// water marks refresh on every processed tick.
type TradeMilestones struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	TradeID string `gorm:"size:100;uniqueIndex" json:"trade_id"`

	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`

	// Profit thresholds: 0.5, 1, 1.5, 2, 3, 5, 7.5, 10 percent.
	Profit05At  *time.Time `gorm:"column:profit_0_5_at" json:"profit_0_5_at,omitempty"`
	Profit10At  *time.Time `gorm:"column:profit_1_0_at" json:"profit_1_0_at,omitempty"`
	Profit15At  *time.Time `gorm:"column:profit_1_5_at" json:"profit_1_5_at,omitempty"`
	Profit20At  *time.Time `gorm:"column:profit_2_0_at" json:"profit_2_0_at,omitempty"`
	Profit30At  *time.Time `gorm:"column:profit_3_0_at" json:"profit_3_0_at,omitempty"`
	Profit50At  *time.Time `gorm:"column:profit_5_0_at" json:"profit_5_0_at,omitempty"`
	Profit75At  *time.Time `gorm:"column:profit_7_5_at" json:"profit_7_5_at,omitempty"`
	Profit100At *time.Time `gorm:"column:profit_10_0_at" json:"profit_10_0_at,omitempty"`

	// Drawdown thresholds: -0.5, -1, -1.5, -2, -3, -5, -7.5, -10 percent.
	Drawdown05At  *time.Time `gorm:"column:drawdown_0_5_at" json:"drawdown_0_5_at,omitempty"`
	Drawdown10At  *time.Time `gorm:"column:drawdown_1_0_at" json:"drawdown_1_0_at,omitempty"`
	Drawdown15At  *time.Time `gorm:"column:drawdown_1_5_at" json:"drawdown_1_5_at,omitempty"`
	Drawdown20At  *time.Time `gorm:"column:drawdown_2_0_at" json:"drawdown_2_0_at,omitempty"`
	Drawdown30At  *time.Time `gorm:"column:drawdown_3_0_at" json:"drawdown_3_0_at,omitempty"`
	Drawdown50At  *time.Time `gorm:"column:drawdown_5_0_at" json:"drawdown_5_0_at,omitempty"`
	Drawdown75At  *time.Time `gorm:"column:drawdown_7_5_at" json:"drawdown_7_5_at,omitempty"`
	Drawdown100At *time.Time `gorm:"column:drawdown_10_0_at" json:"drawdown_10_0_at,omitempty"`

	HighWaterPct float64    `json:"high_water_pct"`
	HighWaterAt  *time.Time `json:"high_water_at,omitempty"`
	LowWaterPct  float64    `json:"low_water_pct"`
	LowWaterAt   *time.Time `json:"low_water_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TradeMilestones) TableName() string {
	return "trade_milestones"
}
