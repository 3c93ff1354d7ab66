package volatility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradewatch/src/model"
	"tradewatch/src/repository"
)

// ----- volatility calculator -----

// atrBuckets maps an ATR% reading to the trail-distance multiplier stamped
// on trades. Calmer symbols trail tighter, wilder ones get more room.
// Ceilings are exclusive upper bounds, walked in order.
var atrBuckets = []struct {
	ceiling    float64
	multiplier float64
}{
	{0.5, 0.8},
	{1.5, 1.0},
	{3.0, 1.25},
	{math.MaxFloat64, 1.5},
}

var oneHundred = decimal.NewFromInt(100)

// Calculator derives per-symbol volatility multipliers from hourly OHLCV
// history and stores them for the tracker to stamp onto trades.
type Calculator struct {
	ohlcvRepo *repository.OHLCVRepository
	volRepo   *repository.VolatilityRepository
	cfg       Config
}

func NewCalculator(ohlcvRepo *repository.OHLCVRepository, volRepo *repository.VolatilityRepository) *Calculator {
	return NewCalculatorWithConfig(ohlcvRepo, volRepo, GetConfig())
}

func NewCalculatorWithConfig(
	ohlcvRepo *repository.OHLCVRepository,
	volRepo *repository.VolatilityRepository,
	cfg Config,
) *Calculator {
	return &Calculator{
		ohlcvRepo: ohlcvRepo,
		volRepo:   volRepo,
		cfg:       cfg,
	}
}

// Refresh recomputes the multiplier for one symbol from hourly candles,
// falling back to an hourly aggregation of the 1m table when the 1h table
// has gaps. The stored row is returned.
func (c *Calculator) Refresh(ctx context.Context, symbol string, now time.Time) (*model.SymbolVolatility, error) {
	candles, err := c.hourlyCandles(ctx, symbol, now)
	if err != nil {
		return nil, err
	}
	if len(candles) < c.cfg.MinCandles {
		return nil, fmt.Errorf("not enough hourly history for %s: have %d candles, need %d",
			symbol, len(candles), c.cfg.MinCandles)
	}

	atrPct, ok := atrPercent(candles)
	if !ok {
		return nil, fmt.Errorf("degenerate candle history for %s", symbol)
	}

	atr := atrPct.InexactFloat64()
	row := &model.SymbolVolatility{
		Symbol:     symbol,
		ATRPct:     atr,
		Multiplier: multiplierForATR(atr),
		Candles:    len(candles),
		Timeframe:  "1h",
		ComputedAt: now,
	}

	if err := c.volRepo.Upsert(ctx, row); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"atr_pct":    fmt.Sprintf("%.3f", row.ATRPct),
		"multiplier": row.Multiplier,
		"candles":    row.Candles,
	}).Info("Symbol volatility refreshed")

	return row, nil
}

// RefreshAll refreshes every symbol, isolating failures per symbol so one
// unmeasurable market cannot block the rest. Returns how many succeeded.
func (c *Calculator) RefreshAll(ctx context.Context, symbols []string, now time.Time) int {
	refreshed := 0
	for _, symbol := range symbols {
		if _, err := c.Refresh(ctx, symbol, now); err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": symbol,
			}).WithError(err).Warn("Volatility refresh failed for symbol")
			continue
		}
		refreshed++
	}
	return refreshed
}

func (c *Calculator) hourlyCandles(ctx context.Context, symbol string, now time.Time) ([]model.OHLCVBase, error) {
	rows, err := c.ohlcvRepo.FetchRecentOHLCV1h(ctx, symbol, now, c.cfg.Candles)
	if err != nil {
		return nil, err
	}
	if len(rows) >= c.cfg.MinCandles {
		out := make([]model.OHLCVBase, len(rows))
		for i := range rows {
			out[i] = *rows[i].ConvertToOHLCVBase()
		}
		return out, nil
	}

	agg, err := c.ohlcvRepo.FetchRecentOHLCVAgg(ctx, symbol, now, time.Hour, c.cfg.Candles)
	if err != nil {
		return nil, err
	}
	if len(agg) <= len(rows) {
		out := make([]model.OHLCVBase, len(rows))
		for i := range rows {
			out[i] = *rows[i].ConvertToOHLCVBase()
		}
		return out, nil
	}

	logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"hourly":     len(rows),
		"aggregated": len(agg),
	}).Debug("Hourly table sparse, using 1m aggregation")

	out := make([]model.OHLCVBase, len(agg))
	for i := range agg {
		out[i] = *agg[i].ConvertToOHLCVBase()
	}
	return out, nil
}

// atrPercent is the mean true range over the window, expressed as a
// percentage of the latest close. Candles must be ascending chronological.
func atrPercent(candles []model.OHLCVBase) (decimal.Decimal, bool) {
	if len(candles) < 2 {
		return decimal.Zero, false
	}

	var trSum decimal.Decimal
	for i := 1; i < len(candles); i++ {
		trSum = trSum.Add(trueRange(candles[i], candles[i-1].Close))
	}
	atr := trSum.Div(decimal.NewFromInt(int64(len(candles) - 1)))

	last := candles[len(candles)-1].Close
	if last.IsZero() {
		return decimal.Zero, false
	}
	return atr.Div(last).Mul(oneHundred), true
}

func trueRange(c model.OHLCVBase, prevClose decimal.Decimal) decimal.Decimal {
	return decimal.Max(
		c.High.Sub(c.Low),
		c.High.Sub(prevClose).Abs(),
		c.Low.Sub(prevClose).Abs(),
	)
}

func multiplierForATR(atrPct float64) float64 {
	for _, b := range atrBuckets {
		if atrPct < b.ceiling {
			return b.multiplier
		}
	}
	return 1.0
}
