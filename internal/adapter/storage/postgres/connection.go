package postgres

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/pkg/config"
)

// NewConnection opens a PostgreSQL connection through GORM and applies
// the pool settings from config.
func NewConnection(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// RunMigrations auto-migrates the schema when enabled. Production
// deploys that manage schema out of band set database.auto_migrate=false.
func RunMigrations(db *gorm.DB, cfg config.DatabaseConfig) error {
	if !cfg.AutoMigrate {
		return nil
	}
	return db.AutoMigrate(
		&domain.Location{},
		&domain.ChargePoint{},
		&domain.ChargingIntent{},
		&domain.ChargeSession{},
		&domain.MeterSample{},
	)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
