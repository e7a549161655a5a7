package database

import (
	"github.com/princeprakhar/movie-watchlist/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Init(databaseURL string, production bool) (*gorm.DB, error) {
	level := logger.Info
	if production {
		level = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	// Buckets used to be plain counters; the old column has no default.
	migrator := db.Migrator()
	if migrator.HasTable(&models.ThrottleCounter{}) && migrator.HasColumn(&models.ThrottleCounter{}, "count") {
		if err := migrator.DropColumn(&models.ThrottleCounter{}, "count"); err != nil {
			return err
		}
	}

	return db.AutoMigrate(
		&models.User{},
		&models.AuthToken{},
		&models.Platform{},
		&models.Title{},
		&models.Review{},
		&models.ThrottleCounter{},
	)
}
