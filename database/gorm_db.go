package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camden-git/civicregistry/config"
	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/models"
)

// sqliteDSN adds the pragmas the registry relies on: a busy timeout so concurrent writers
// wait instead of failing, and immediate transactions so a write transaction holds the lock
// from BEGIN.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
}

// InitGormDB initializes and returns a GORM database instance for the configured driver.
func InitGormDB(cfg config.Config, log *logger.Logger) (*gorm.DB, error) {
	gormLogger := gormlogger.New(
		log,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	target := cfg.DatabasePath
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
		target = "postgres"
	case config.DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DatabasePath))
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		// ledger rows must survive the household they describe
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Infof("GORM database initialized (%s) at %s", cfg.DatabaseDriver, target)
	return db, nil
}

// AutoMigrateModels migrates every registry table.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Household{},
		&models.Person{},
		&models.HouseholdChangeHistory{},
		&models.PersonChangeHistory{},
		&models.TemporaryResidence{},
		&models.User{},
		&models.Role{},
		&models.UserRole{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}
