package risk

import (
	"time"

	"tradewatch/src/model"
)

// ----- rolling window metrics -----

// windowMetrics summarizes the last-N completed trades for one key. A win is
// a strictly positive final PnL; everything else counts against the key.
type windowMetrics struct {
	sampleSize     int
	winRate        float64
	avgRiskReward  float64
	consecLosses   int
	consecWins     int
	lossesIn10     int
	pnl10          float64
	pnl20          float64
	maxDrawdownPct float64
	hourlyPnl      float64
	dailyPnl       float64
}

func finalPnl(t *model.Trade) float64 {
	if t.FinalPnlPct == nil {
		return 0
	}
	return *t.FinalPnlPct
}

// computeWindowMetrics expects trades ordered most recent first, as
// FindCompletedForKey returns them.
func computeWindowMetrics(trades []model.Trade, now time.Time) windowMetrics {
	m := windowMetrics{sampleSize: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var wins int
	var winSum, lossSum float64

	for i := range trades {
		pnl := finalPnl(&trades[i])
		m.pnl20 += pnl
		if i < 10 {
			m.pnl10 += pnl
			if pnl <= 0 {
				m.lossesIn10++
			}
		}

		if pnl > 0 {
			wins++
			winSum += pnl
		} else {
			lossSum += -pnl
		}

		if trades[i].ClosedAt != nil {
			age := now.Sub(*trades[i].ClosedAt)
			if age <= time.Hour {
				m.hourlyPnl += pnl
			}
			if age <= 24*time.Hour {
				m.dailyPnl += pnl
			}
		}
	}

	m.winRate = float64(wins) / float64(len(trades)) * 100

	losses := len(trades) - wins
	if losses > 0 && lossSum > 0 && wins > 0 {
		m.avgRiskReward = (winSum / float64(wins)) / (lossSum / float64(losses))
	} else if wins > 0 {
		// No realized losses yet: cap instead of dividing by zero.
		m.avgRiskReward = 99
	}

	// Streaks end at the most recent trade.
	for i := range trades {
		if finalPnl(&trades[i]) <= 0 {
			break
		}
		m.consecWins++
	}
	for i := range trades {
		if finalPnl(&trades[i]) > 0 {
			break
		}
		m.consecLosses++
	}

	// Drawdown walks the window chronologically, oldest first.
	var equity, peak, drawdown float64
	for i := len(trades) - 1; i >= 0; i-- {
		equity += finalPnl(&trades[i])
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > drawdown {
			drawdown = dd
		}
	}
	m.maxDrawdownPct = drawdown

	return m
}
