package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradewatch/src/database"
	"tradewatch/src/model"
)

// TradeRepository handles read/write operations for tracked trades.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main read/write database.
func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Debug("Creating TradeRepository with custom DB instance")

	return &TradeRepository{db: db}
}

// Create inserts a new trade into the database.
// The given trade will be updated with the generated ID and timestamps.
func (r *TradeRepository) Create(
	ctx context.Context,
	trade *model.Trade,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "TradeRepository",
		"op":        "Create",
		"trade_id":  trade.TradeID,
		"symbol":    trade.Symbol,
		"direction": trade.Direction,
	}).Debug("Creating new trade")

	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "Create",
			"trade_id": trade.TradeID,
		}).WithError(err).Error("Failed to create trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "Create",
		"trade_id": trade.TradeID,
		"id":       trade.ID,
	}).Info("Trade created successfully")

	return nil
}

// FindByTradeID fetches a single trade by its human-readable identifier.
// Returns (nil, nil) if the trade is not found.
func (r *TradeRepository) FindByTradeID(
	ctx context.Context,
	tradeID string,
) (*model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "FindByTradeID",
		"trade_id": tradeID,
	}).Debug("Fetching trade by trade ID")

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":     "TradeRepository",
				"op":       "FindByTradeID",
				"trade_id": tradeID,
			}).Info("Trade not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "FindByTradeID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to fetch trade by trade ID")

		return nil, err
	}

	return &trade, nil
}

// FindActive returns every trade still in active status, oldest first so the
// tracker resubscribes in entry order.
func (r *TradeRepository) FindActive(
	ctx context.Context,
) ([]model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository",
		"op":   "FindActive",
	}).Debug("Fetching active trades")

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusActive).
		Order("entry_time ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active trades")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TradeRepository",
		"op":          "FindActive",
		"rows_return": len(trades),
	}).Info("Active trades fetched")

	return trades, nil
}

// FindActiveOlderThan returns active trades whose entry time predates the
// cutoff. Used by the timeout checker.
func (r *TradeRepository) FindActiveOlderThan(
	ctx context.Context,
	cutoff time.Time,
) ([]model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "TradeRepository",
		"op":     "FindActiveOlderThan",
		"cutoff": cutoff,
	}).Debug("Fetching timed-out trades")

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("status = ? AND entry_time < ?", model.TradeStatusActive, cutoff).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindActiveOlderThan",
		}).WithError(err).Error("Failed to fetch timed-out trades")

		return nil, err
	}

	return trades, nil
}

// Save persists the full current state of the trade row.
func (r *TradeRepository) Save(
	ctx context.Context,
	trade *model.Trade,
) error {

	err := r.db.WithContext(ctx).Save(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "Save",
			"trade_id": trade.TradeID,
		}).WithError(err).Error("Failed to save trade")

		return err
	}

	return nil
}

// MarkCompleted updates only the closing fields of the given trade ID.
func (r *TradeRepository) MarkCompleted(
	ctx context.Context,
	tradeID string,
	outcome string,
	finalPnlPct float64,
	closedAt time.Time,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":          "TradeRepository",
		"op":            "MarkCompleted",
		"trade_id":      tradeID,
		"outcome":       outcome,
		"final_pnl_pct": finalPnlPct,
	}).Debug("Marking trade completed")

	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("trade_id = ?", tradeID).
		Updates(map[string]interface{}{
			"status":        model.TradeStatusCompleted,
			"outcome":       outcome,
			"final_pnl_pct": finalPnlPct,
			"closed_at":     closedAt,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "MarkCompleted",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to mark trade completed")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "MarkCompleted",
		"trade_id": tradeID,
		"outcome":  outcome,
	}).Info("Trade marked completed")

	return nil
}

// FindCompletedForKey returns the most recent completed trades for one
// (symbol, direction, source) combination, newest first. The circuit breaker
// calls this on the read-only connection.
func (r *TradeRepository) FindCompletedForKey(
	ctx context.Context,
	symbol string,
	direction string,
	source string,
	limit int,
) ([]model.Trade, error) {

	if limit <= 0 {
		limit = 20
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "TradeRepository",
		"op":        "FindCompletedForKey",
		"symbol":    symbol,
		"direction": direction,
		"source":    source,
		"limit":     limit,
	}).Debug("Fetching completed trades for asset key")

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND direction = ? AND source = ? AND status = ?",
			symbol, direction, source, model.TradeStatusCompleted).
		Order("closed_at DESC").
		Limit(limit).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "FindCompletedForKey",
			"symbol":    symbol,
			"direction": direction,
			"source":    source,
		}).WithError(err).Error("Failed to fetch completed trades for asset key")

		return nil, err
	}

	return trades, nil
}

// CommitTickBatch persists one instrument's accumulated tick state in a single
// transaction: mutated trades, their milestone records, and the raw price
// samples. Either everything commits or nothing does, so a failed flush can be
// retried with the same buffers.
func (r *TradeRepository) CommitTickBatch(
	ctx context.Context,
	trades []*model.Trade,
	milestones []*model.TradeMilestones,
	samples []model.PriceSample,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "TradeRepository",
		"op":         "CommitTickBatch",
		"trades":     len(trades),
		"milestones": len(milestones),
		"samples":    len(samples),
	}).Debug("Committing tick batch")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, trade := range trades {
			if err := tx.Save(trade).Error; err != nil {
				logger.WithError(err).Error("Failed to save trade inside batch transaction")
				return err
			}
		}

		for _, rec := range milestones {
			if err := tx.Save(rec).Error; err != nil {
				logger.WithError(err).Error("Failed to save milestone record inside batch transaction")
				return err
			}
		}

		if len(samples) > 0 {
			if err := tx.Create(&samples).Error; err != nil {
				logger.WithError(err).Error("Failed to insert price samples inside batch transaction")
				return err
			}
		}

		return nil
	})
}
