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

// AssetHealthRepository handles circuit-breaker state rows, one per
// (symbol, direction, source) combination.
type AssetHealthRepository struct {
	db *gorm.DB
}

// NewAssetHealthRepository creates a new repository instance using the main read/write database.
func NewAssetHealthRepository() *AssetHealthRepository {
	logger.WithField("component", "AssetHealthRepository").
		Info("Creating new AssetHealthRepository with MainDB")

	return &AssetHealthRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *AssetHealthRepository) WithDB(db *gorm.DB) *AssetHealthRepository {
	logger.WithField("component", "AssetHealthRepository").
		Debug("Creating AssetHealthRepository with custom DB instance")

	return &AssetHealthRepository{db: db}
}

// FindByKey fetches the health record for one asset key.
// Returns (nil, nil) if no record exists yet.
func (r *AssetHealthRepository) FindByKey(
	ctx context.Context,
	symbol string,
	direction string,
	source string,
) (*model.AssetHealth, error) {

	logger.WithFields(map[string]interface{}{
		"repo":      "AssetHealthRepository",
		"op":        "FindByKey",
		"symbol":    symbol,
		"direction": direction,
		"source":    source,
	}).Debug("Fetching asset health record")

	var health model.AssetHealth

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND direction = ? AND source = ?", symbol, direction, source).
		First(&health).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "AssetHealthRepository",
			"op":        "FindByKey",
			"symbol":    symbol,
			"direction": direction,
			"source":    source,
		}).WithError(err).Error("Failed to fetch asset health record")

		return nil, err
	}

	return &health, nil
}

// Upsert persists the health record. Records already loaded from the
// database (non-zero ID) are saved in place; fresh records insert, falling
// back to an update when another writer created the key first.
func (r *AssetHealthRepository) Upsert(
	ctx context.Context,
	health *model.AssetHealth,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "AssetHealthRepository",
		"op":        "Upsert",
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
		"status":    health.Status,
	}).Debug("Upserting asset health record")

	var err error
	if health.ID != 0 {
		err = r.db.WithContext(ctx).Save(health).Error
	} else {
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "direction"}, {Name: "source"}}, // Composite unique index columns
			UpdateAll: true,
		}).Create(health).Error
	}

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "AssetHealthRepository",
			"op":        "Upsert",
			"symbol":    health.Symbol,
			"direction": health.Direction,
			"source":    health.Source,
		}).WithError(err).Error("Failed to upsert asset health record")

		return err
	}

	return nil
}

// FindByStatus returns every health record currently in the given status.
func (r *AssetHealthRepository) FindByStatus(
	ctx context.Context,
	status string,
) ([]model.AssetHealth, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "AssetHealthRepository",
		"op":     "FindByStatus",
		"status": status,
	}).Debug("Fetching asset health records by status")

	var records []model.AssetHealth

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Find(&records).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "AssetHealthRepository",
			"op":     "FindByStatus",
			"status": status,
		}).WithError(err).Error("Failed to fetch asset health records by status")

		return nil, err
	}

	return records, nil
}
