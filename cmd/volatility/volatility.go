package volatility

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"tradewatch/src/mapper"
	common "tradewatch/src/model"
	"tradewatch/src/repository"
	volcalc "tradewatch/src/volatility"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Refresher backfills OHLCV candles for the configured symbols and then
// recomputes each symbol's volatility multiplier from them. Run it on a
// schedule so the multiplier the tracker stamps onto new trades stays
// current.
type Refresher struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (r *Refresher) Start() error {
	r.Config = GetConfig()

	r.exchange = r.newBinanceInstance()

	symbols := r.tradingSymbols()
	if len(symbols) == 0 {
		return errors.New("no symbols configured")
	}

	for _, base := range r.bases() {
		if err := r.backfillSymbol(base); err != nil {
			// One unreachable market must not block the others.
			r.Log.WithError(err).WithField("symbol", base).Error("OHLCV backfill failed for symbol")
		}
	}

	calc := volcalc.NewCalculator(
		repository.NewOHLCVRepositoryWithDB(r.DB),
		repository.NewVolatilityRepository().WithDB(r.DB),
	)
	refreshed := calc.RefreshAll(context.Background(), symbols, time.Now().UTC())

	r.Log.WithFields(logger.Fields{
		"symbols":   len(symbols),
		"refreshed": refreshed,
	}).Info("volatility refresh finished")

	if refreshed == 0 {
		return errors.New("no symbol could be refreshed")
	}
	return nil
}

func (*Refresher) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// bases returns the configured base currencies ("BTC", "ETH").
func (r *Refresher) bases() []string {
	raw := strings.Split(r.Config.Symbols, ",")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// tradingSymbols returns the venue-neutral symbols the engine tracks under
// ("BTCUSDT", "ETHUSDT").
func (r *Refresher) tradingSymbols() []string {
	bases := r.bases()
	out := make([]string, len(bases))
	for i, base := range bases {
		out[i] = mapper.NormalizeToUSDT(base + r.Config.Quote)
	}
	return out
}

func (r *Refresher) backfillSymbol(base string) error {
	symbol := mapper.NormalizeToUSDT(base + r.Config.Quote)

	startDt, endDt := r.Config.StartDt, r.Config.EndDt
	if r.Config.AutoMode {
		startDt, endDt = r.determineStartPoint(symbol)
	}

	series, err := r.fetchOHLCVSeries(base, startDt, endDt)
	if err != nil {
		return err
	}

	for i := range series {
		result := series[i]

		var target interface{}
		target = &common.OHLCVBase{
			Datetime: time.Unix(result.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(result.Open),
			High:     decimal.NewFromFloat(result.High),
			Low:      decimal.NewFromFloat(result.Low),
			Close:    decimal.NewFromFloat(result.Close),
			Volume:   decimal.NewFromFloat(result.Vol),
			Symbol:   symbol,
		}

		if r.Config.DurationStr == Duration1m {
			target = target.(*common.OHLCVBase).ConvertToOHLCVCrypto1m()
		} else if r.Config.DurationStr == Duration1h {
			target = target.(*common.OHLCVBase).ConvertToOHLCVCrypto1h()
		}

		// Upsert: on conflict on (symbol, datetime) do update
		if err := r.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "datetime"}}, // Composite unique index columns
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(target).Error; err != nil {
			r.Log.WithError(err).Error("backfillSymbol, Create, ")
			return err
		}
	}

	r.Log.WithFields(logger.Fields{
		"symbol":  symbol,
		"candles": len(series),
		"startDt": startDt.String(),
		"endDt":   endDt.String(),
	}).Info("OHLCV data inserted or updated in database")

	return nil
}

// determineStartPoint resumes the backfill one interval before the latest
// stored candle, so restarts re-fetch the possibly partial last bucket.
func (r *Refresher) determineStartPoint(symbol string) (time.Time, time.Time) {
	startDt := r.Config.StartDt.Add(-r.parseDuration())
	endDt := time.Now()

	var latestTime *sql.NullTime
	result := r.getModel().
		Select("MAX(datetime)").
		Where("symbol = ?", symbol).
		Take(&latestTime)

	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		r.Log.
			WithError(result.Error).
			Error("Failed to query latest datetime, starting from the configured StartDt")
		return startDt, endDt
	}

	if latestTime != nil && latestTime.Valid {
		startDt = latestTime.Time.Add(-r.parseDuration())
		r.Log.
			WithField("StartDt", startDt.String()).
			WithField("EndDt", endDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		r.Log.
			WithField("StartDt", startDt.String()).
			WithField("EndDt", endDt.String()).
			Info("determineStartPoint no existing candles, starting from configured StartDt")
	}

	return startDt, endDt
}

func (r *Refresher) fetchOHLCVSeries(base string, startDt, endDt time.Time) ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: r.Config.Quote})

	const millis = 1000
	klines, err := r.exchange.GetKlineRecords(
		targetSymbol,
		r.parseDurationToGoex(),
		r.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", startDt.Unix()*millis).
			Optional("endTime", endDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (r *Refresher) parseDuration() time.Duration {
	var duration time.Duration
	switch r.Config.DurationStr {
	case Duration1m:
		duration = time.Minute
	case Duration1h:
		duration = time.Hour
	default:
		panic("invalid DURATION env var")
	}
	return duration
}

func (r *Refresher) parseDurationToGoex() goex.KlinePeriod {
	var duration goex.KlinePeriod
	switch r.Config.DurationStr {
	case Duration1m:
		duration = goex.KLINE_PERIOD_1MIN
	case Duration1h:
		duration = goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
	return duration
}

func (r *Refresher) getModel() (tx *gorm.DB) {
	switch r.Config.DurationStr {
	case Duration1m:
		tx = r.DB.Model(&common.OHLCVCrypto1m{})
	case Duration1h:
		tx = r.DB.Model(&common.OHLCVCrypto1h{})
	default:
		panic("getModel, invalid DURATION")
	}
	return tx
}
