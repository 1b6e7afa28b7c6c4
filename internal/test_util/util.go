package test_util

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// GetDBConnection opens a silent sqlite connection
func GetDBConnection(dbFile string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})

	if err != nil {
		return nil, err
	}

	return db, err
}

// Migrate runs each migration against db
func Migrate(db *gorm.DB, migrations ...func(*gorm.DB) error) error {
	for _, m := range migrations {
		if err := m(db); err != nil {
			return err
		}
	}

	return nil
}

// TempDB returns a migrated database in the test's temp dir
func TempDB(t *testing.T, migrations ...func(*gorm.DB) error) *gorm.DB {
	db, err := GetDBConnection(filepath.Join(t.TempDir(), "hashwatch.db"))

	if err != nil {
		t.Logf("failed to create test db: %s", err.Error())
		t.FailNow()
	}

	if err := Migrate(db, migrations...); err != nil {
		t.Logf("failed to migrate test db: %s", err.Error())
		t.FailNow()
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}
