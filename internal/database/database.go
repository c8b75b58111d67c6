// Package database opens the optional Postgres archive of pipeline runs.
package database

import (
	"errors"
	"fmt"

	"journaling-go/internal/config"
	logging "journaling-go/internal/logging"
	"journaling-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrDisabled is returned by Open when the archive is switched off.
var ErrDisabled = errors.New("database archive disabled")

// DSN builds the Postgres connection string.
func DSN(conf config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		conf.Host, conf.User, conf.Password, conf.DBName, conf.Port)
}

// Open connects to Postgres and migrates the archive schema.
func Open(conf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if !conf.Enabled {
		return nil, ErrDisabled
	}

	db, err := gorm.Open(postgres.Open(DSN(conf)), &gorm.Config{
		Logger: logging.NewGormZapLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.")

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the archive tables and the indexes AutoMigrate does not.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&models.PipelineRun{},
		&models.StageReportRecord{},
		&models.ParticipantRecord{},
		&models.SuspiciousFlag{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	reportsIndex := `CREATE INDEX IF NOT EXISTS idx_stage_reports_run ON stage_report_records (run_id, step, stage);`
	if err := db.Exec(reportsIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on stage reports: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
