package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradewatch/src/database"
	"tradewatch/src/model"
)

// MilestoneRepository handles persistence of per-trade milestone records.
type MilestoneRepository struct {
	db *gorm.DB
}

// NewMilestoneRepository creates a new repository instance using the main read/write database.
func NewMilestoneRepository() *MilestoneRepository {
	logger.WithField("component", "MilestoneRepository").
		Info("Creating new MilestoneRepository with MainDB")

	return &MilestoneRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *MilestoneRepository) WithDB(db *gorm.DB) *MilestoneRepository {
	logger.WithField("component", "MilestoneRepository").
		Debug("Creating MilestoneRepository with custom DB instance")

	return &MilestoneRepository{db: db}
}

// FindByTradeID fetches the milestone record for a trade.
// Returns (nil, nil) if no record exists yet.
func (r *MilestoneRepository) FindByTradeID(
	ctx context.Context,
	tradeID string,
) (*model.TradeMilestones, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "MilestoneRepository",
		"op":       "FindByTradeID",
		"trade_id": tradeID,
	}).Debug("Fetching milestone record")

	var rec model.TradeMilestones

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		First(&rec).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "MilestoneRepository",
			"op":       "FindByTradeID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to fetch milestone record")

		return nil, err
	}

	return &rec, nil
}

// Create inserts a new milestone record.
func (r *MilestoneRepository) Create(
	ctx context.Context,
	rec *model.TradeMilestones,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "MilestoneRepository",
		"op":       "Create",
		"trade_id": rec.TradeID,
	}).Debug("Creating milestone record")

	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "MilestoneRepository",
			"op":       "Create",
			"trade_id": rec.TradeID,
		}).WithError(err).Error("Failed to create milestone record")

		return err
	}

	return nil
}

// Save persists the full current state of the milestone record.
func (r *MilestoneRepository) Save(
	ctx context.Context,
	rec *model.TradeMilestones,
) error {

	err := r.db.WithContext(ctx).Save(rec).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "MilestoneRepository",
			"op":       "Save",
			"trade_id": rec.TradeID,
		}).WithError(err).Error("Failed to save milestone record")

		return err
	}

	return nil
}

// DeleteByTradeID removes the milestone record for a trade. Called after the
// post-trade pipeline has consumed it.
func (r *MilestoneRepository) DeleteByTradeID(
	ctx context.Context,
	tradeID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "MilestoneRepository",
		"op":       "DeleteByTradeID",
		"trade_id": tradeID,
	}).Debug("Deleting milestone record")

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Delete(&model.TradeMilestones{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "MilestoneRepository",
			"op":       "DeleteByTradeID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to delete milestone record")

		return err
	}

	return nil
}
