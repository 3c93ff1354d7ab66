package database

import (
	"fmt"
	"tradewatch/src/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sirupsen/logrus"
)

// ReadOnlyDB serves the circuit breaker's completed-trade history scans.
// The database user for this connection should have SELECT-only permissions.
// When no read-only DSN is configured it aliases MainDB.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()

	if config.DatabaseURLReadOnly == "" {
		if MainDB == nil {
			return fmt.Errorf("no read-only DSN configured and MainDB not initialized")
		}
		ReadOnlyDB = MainDB
		logrus.Info("[ReadOnlyDB] no dedicated DSN, reusing MainDB connection")
		return nil
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var dbName, schema string
	if err := db.
		Raw("SELECT current_database(), current_schema()").
		Row().
		Scan(&dbName, &schema); err != nil {
		return fmt.Errorf("failed to query current db/schema on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"db_name": dbName, "schema": schema}).Info("[ReadOnlyDB] connected")

	// Test if the trades table is really reachable before anything
	// starts scanning history on this handle.
	var count int64
	if err1 := db.
		Model(&model.Trade{}).
		Where("status = ?", model.TradeStatusCompleted).
		Count(&count).Error; err1 != nil {

		return fmt.Errorf("failed to access trades: %w", err1)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] trades table reachable")

	ReadOnlyDB = db

	return nil
}
