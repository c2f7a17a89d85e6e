// Package testutil provides a throwaway registry database for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/config"
	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/logger"
)

// NewDB opens a migrated sqlite database in a per-test temp dir. A file is used instead of
// :memory: so concurrent transactions see one database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := config.Config{
		DatabaseDriver: config.DriverSQLite,
		DatabasePath:   filepath.Join(t.TempDir(), "registry_test.db"),
	}
	db, err := database.InitGormDB(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
