package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// Migration is a named data fix applied at most once per database.
type Migration struct {
	Name  string
	Apply func(*gorm.DB) error
}

// ApplyMigrations runs every migration that has no record in db_migrations yet, in order.
func ApplyMigrations(db *gorm.DB, logger *zap.Logger, migrations []Migration) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.Name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.Apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.Name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.Name))
		}
	}
	return nil
}
