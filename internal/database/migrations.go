package database

import (
	"errors"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/review"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairEaseFactorFloor = "2026-07-28_repair_ease_factor_floor"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairEaseFactorFloor, apply: repairEaseFactorFloor},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairEaseFactorFloor clamps ease factors written before the floor was
// enforced at the scheduler level.
func repairEaseFactorFloor(db *gorm.DB) error {
	return db.Model(&review.Card{}).
		Where("ease_factor < ?", srs.MinEaseFactor).
		Update("ease_factor", srs.MinEaseFactor).Error
}
