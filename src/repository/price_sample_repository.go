package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradewatch/src/database"
	"tradewatch/src/model"
)

// PriceSampleRepository handles the ephemeral per-trade tick samples.
type PriceSampleRepository struct {
	db *gorm.DB
}

// NewPriceSampleRepository creates a new repository instance using the main read/write database.
func NewPriceSampleRepository() *PriceSampleRepository {
	logger.WithField("component", "PriceSampleRepository").
		Info("Creating new PriceSampleRepository with MainDB")

	return &PriceSampleRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PriceSampleRepository) WithDB(db *gorm.DB) *PriceSampleRepository {
	logger.WithField("component", "PriceSampleRepository").
		Debug("Creating PriceSampleRepository with custom DB instance")

	return &PriceSampleRepository{db: db}
}

// FindByTradeID returns all samples for a trade in chronological order.
func (r *PriceSampleRepository) FindByTradeID(
	ctx context.Context,
	tradeID string,
) ([]model.PriceSample, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "PriceSampleRepository",
		"op":       "FindByTradeID",
		"trade_id": tradeID,
	}).Debug("Fetching price samples for trade")

	var samples []model.PriceSample

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("sampled_at ASC").
		Find(&samples).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PriceSampleRepository",
			"op":       "FindByTradeID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to fetch price samples")

		return nil, err
	}

	return samples, nil
}

// DeleteForCompletedBefore removes samples belonging to trades that completed
// before the cutoff. Samples only exist to feed post-close simulation, so
// once the retention window passes they are garbage.
func (r *PriceSampleRepository) DeleteForCompletedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "PriceSampleRepository",
		"op":     "DeleteForCompletedBefore",
		"cutoff": cutoff,
	}).Debug("Pruning price samples of completed trades")

	res := r.db.WithContext(ctx).
		Where("trade_id IN (?)",
			r.db.Model(&model.Trade{}).
				Select("trade_id").
				Where("status = ? AND closed_at < ?", model.TradeStatusCompleted, cutoff),
		).
		Delete(&model.PriceSample{})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PriceSampleRepository",
			"op":   "DeleteForCompletedBefore",
		}).WithError(res.Error).Error("Failed to prune price samples")

		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":         "PriceSampleRepository",
			"op":           "DeleteForCompletedBefore",
			"rows_deleted": res.RowsAffected,
		}).Info("Pruned price samples of completed trades")
	}

	return res.RowsAffected, nil
}
