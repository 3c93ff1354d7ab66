package volatility

import (
	"context"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradewatch/src/model"
	"tradewatch/src/repository"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(&model.OHLCVCrypto1h{}, &model.OHLCVCrypto1m{}, &model.SymbolVolatility{}); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func newTestCalculator(t *testing.T) (*Calculator, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	calc := NewCalculatorWithConfig(
		repository.NewOHLCVRepositoryWithDB(db),
		repository.NewVolatilityRepository().WithDB(db),
		Config{Candles: 10, MinCandles: 3},
	)
	return calc, db
}

func TestMultiplierForATR(t *testing.T) {
	cases := []struct {
		atrPct float64
		want   float64
	}{
		{0.1, 0.8},
		{0.49, 0.8},
		{0.5, 1.0},
		{1.49, 1.0},
		{1.5, 1.25},
		{2.99, 1.25},
		{3.0, 1.5},
		{12, 1.5},
	}

	for _, tc := range cases {
		if got := multiplierForATR(tc.atrPct); got != tc.want {
			t.Errorf("multiplierForATR(%.2f) = %.2f, want %.2f", tc.atrPct, got, tc.want)
		}
	}
}

func TestAtrPercent(t *testing.T) {
	candles := []model.OHLCVBase{
		{Open: d("100"), High: d("100"), Low: d("100"), Close: d("100")},
		{Open: d("100"), High: d("102"), Low: d("99"), Close: d("101")},
		{Open: d("101"), High: d("104"), Low: d("100"), Close: d("102")},
	}

	got, ok := atrPercent(candles)
	if !ok {
		t.Fatalf("expected a reading from %d candles", len(candles))
	}

	// TR1 = max(3, 2, 1) = 3, TR2 = max(4, 3, 1) = 4, ATR = 3.5 on close 102.
	want := 350.0 / 102.0
	if math.Abs(got.InexactFloat64()-want) > 1e-6 {
		t.Fatalf("atrPercent = %s, want %.6f", got, want)
	}
}

func TestAtrPercent_TooFewCandles(t *testing.T) {
	if _, ok := atrPercent([]model.OHLCVBase{{Close: d("100")}}); ok {
		t.Fatal("one candle must not produce a reading")
	}
}

func TestCalculatorRefresh(t *testing.T) {
	calc, db := newTestCalculator(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		row := model.OHLCVCrypto1h{
			Symbol:   "BTCUSDT",
			Datetime: base.Add(time.Duration(i) * time.Hour),
			Open:     d("100"),
			High:     d("100.2"),
			Low:      d("99.9"),
			Close:    d("100"),
			Volume:   d("5"),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("failed to seed hourly candle: %v", err)
		}
	}

	now := base.Add(5 * time.Hour)
	row, err := calc.Refresh(ctx, "BTCUSDT", now)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Every candle spans 0.3 on a flat 100 close: ATR% = 0.3, calm bucket.
	if math.Abs(row.ATRPct-0.3) > 1e-9 {
		t.Fatalf("ATRPct = %.4f, want 0.3", row.ATRPct)
	}
	if row.Multiplier != 0.8 {
		t.Fatalf("Multiplier = %.2f, want 0.8", row.Multiplier)
	}
	if row.Candles != 4 || row.Timeframe != "1h" {
		t.Fatalf("unexpected row metadata: %+v", row)
	}

	stored := repository.NewVolatilityRepository().WithDB(db)
	if got := stored.MultiplierFor(ctx, "BTCUSDT"); got != 0.8 {
		t.Fatalf("stored multiplier = %.2f, want 0.8", got)
	}
}

func TestCalculatorRefresh_AggregatesFromMinuteTable(t *testing.T) {
	calc, db := newTestCalculator(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// No hourly rows at all; six 1m candles spanning three hour buckets.
	for hour := 0; hour < 3; hour++ {
		open := base.Add(time.Duration(hour) * time.Hour)
		first := model.OHLCVCrypto1m{
			Symbol: "ETHUSDT", Datetime: open,
			Open: d("100"), High: d("100.4"), Low: d("99.8"), Close: d("100.1"), Volume: d("1"),
		}
		second := model.OHLCVCrypto1m{
			Symbol: "ETHUSDT", Datetime: open.Add(30 * time.Minute),
			Open: d("100.1"), High: d("100.3"), Low: d("99.9"), Close: d("100"), Volume: d("1"),
		}
		if err := db.Create(&first).Error; err != nil {
			t.Fatalf("failed to seed 1m candle: %v", err)
		}
		if err := db.Create(&second).Error; err != nil {
			t.Fatalf("failed to seed 1m candle: %v", err)
		}
	}

	row, err := calc.Refresh(ctx, "ETHUSDT", base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Aggregated hourly candles span 0.6 on a flat 100 close: normal bucket.
	if row.Candles != 3 {
		t.Fatalf("Candles = %d, want 3 aggregated buckets", row.Candles)
	}
	if math.Abs(row.ATRPct-0.6) > 1e-9 {
		t.Fatalf("ATRPct = %.4f, want 0.6", row.ATRPct)
	}
	if row.Multiplier != 1.0 {
		t.Fatalf("Multiplier = %.2f, want 1.0", row.Multiplier)
	}
}

func TestCalculatorRefresh_NotEnoughHistory(t *testing.T) {
	calc, db := newTestCalculator(t)
	ctx := context.Background()

	if _, err := calc.Refresh(ctx, "XRPUSDT", time.Now().UTC()); err == nil {
		t.Fatal("expected an error for a symbol without history")
	}

	stored, err := repository.NewVolatilityRepository().WithDB(db).FindBySymbol(ctx, "XRPUSDT")
	if err != nil {
		t.Fatalf("FindBySymbol failed: %v", err)
	}
	if stored != nil {
		t.Fatalf("no row must be written without history, got %+v", stored)
	}
}
