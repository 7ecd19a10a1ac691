package database

import (
	"fmt"
	"os"
	"path/filepath"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Schema lists the models to auto-migrate and the named one-shot migrations to apply after them.
type Schema struct {
	Models     []any
	Migrations []Migration
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger, schema Schema) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := append([]any{&migrationRecord{}}, schema.Models...)
	if err := db.AutoMigrate(models...); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := ApplyMigrations(db, logger, schema.Migrations); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if logger != nil {
		logger.Debug("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Close releases the connection pool behind a gorm handle.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
