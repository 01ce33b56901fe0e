// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), MySQL, and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/config"
	"github.com/estateops/go-estate-backend/internal/domain"
)

// Open connects to the store selected by cfg.Driver.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		return OpenMySQL(cfg.DSN)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	tunePool(db)
	return db, nil
}

// OpenMySQL opens a MySQL connection with the pool settings used in
// production deployments.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	tunePool(db)
	return db, nil
}

func tunePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// AutoMigrate creates or updates the full schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.District{},
		&domain.House{},
		&domain.HouseImage{},
		&domain.Transaction{},
		&domain.Favorite{},
		&domain.PriceAlert{},
		&domain.MarketReport{},
	)
}
