package config

import (
	"fmt"
	"time"

	"github.com/andrewpaige1/flashd-api/migrations"
	"github.com/andrewpaige1/flashd-api/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the database described by cfg and brings its schema up to date.
func Connect(cfg Database) (*gorm.DB, error) {
	db, err := Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Open opens a gorm connection for the given driver without migrating.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(&log.Logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		// foreign_keys is a per-connection pragma, so pin the pool to one.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	}

	return db, nil
}

// Migrate applies the schema using the configured strategy.
func Migrate(db *gorm.DB, cfg Database) error {
	switch cfg.Migrate {
	case "none":
		return nil
	case "goose":
		if cfg.Driver != "postgres" {
			return AutoMigrate(db)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql handle: %w", err)
		}
		if err := migrations.Up(sqlDB); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		return nil
	default:
		return AutoMigrate(db)
	}
}

// AutoMigrate creates or updates tables from the gorm models.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.User{}, &models.Session{}, &models.Deck{}, &models.Card{})
	if err != nil {
		return fmt.Errorf("failed to auto migrate database: %w", err)
	}
	return nil
}
