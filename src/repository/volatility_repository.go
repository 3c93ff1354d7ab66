package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradewatch/src/database"
	"tradewatch/src/model"
)

// VolatilityRepository handles the per-symbol volatility multiplier rows
// produced by the volatility command and consumed by the tracker.
type VolatilityRepository struct {
	db *gorm.DB
}

// NewVolatilityRepository creates a new repository instance using the main read/write database.
func NewVolatilityRepository() *VolatilityRepository {
	logger.WithField("component", "VolatilityRepository").
		Info("Creating new VolatilityRepository with MainDB")

	return &VolatilityRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *VolatilityRepository) WithDB(db *gorm.DB) *VolatilityRepository {
	logger.WithField("component", "VolatilityRepository").
		Debug("Creating VolatilityRepository with custom DB instance")

	return &VolatilityRepository{db: db}
}

// FindBySymbol fetches the volatility row for a symbol.
// Returns (nil, nil) if the symbol has no row yet.
func (r *VolatilityRepository) FindBySymbol(
	ctx context.Context,
	symbol string,
) (*model.SymbolVolatility, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "VolatilityRepository",
		"op":     "FindBySymbol",
		"symbol": symbol,
	}).Debug("Fetching symbol volatility")

	var row model.SymbolVolatility

	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "VolatilityRepository",
			"op":     "FindBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch symbol volatility")

		return nil, err
	}

	return &row, nil
}

// MultiplierFor returns the stored multiplier for a symbol, defaulting to 1.0
// when the symbol has never been measured. Errors degrade to the default so a
// missing row can never block trade intake.
func (r *VolatilityRepository) MultiplierFor(
	ctx context.Context,
	symbol string,
) float64 {

	row, err := r.FindBySymbol(ctx, symbol)
	if err != nil || row == nil {
		return 1.0
	}
	if row.Multiplier <= 0 {
		return 1.0
	}
	return row.Multiplier
}

// Upsert inserts the volatility row or, on conflict on the symbol, updates it
// in place.
func (r *VolatilityRepository) Upsert(
	ctx context.Context,
	row *model.SymbolVolatility,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "VolatilityRepository",
		"op":         "Upsert",
		"symbol":     row.Symbol,
		"multiplier": row.Multiplier,
		"atr_pct":    row.ATRPct,
	}).Debug("Upserting symbol volatility")

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"atr_pct", "multiplier", "candles", "timeframe", "computed_at", "updated_at"}),
	}).Create(row).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "VolatilityRepository",
			"op":     "Upsert",
			"symbol": row.Symbol,
		}).WithError(err).Error("Failed to upsert symbol volatility")

		return err
	}

	return nil
}
