// Package db opens and migrates the Semaphore persistence backend.
package db

import (
	"fmt"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds a DSN for the MySQL backend.
func MySQLDSN(c config.MySQLConfig) string {
	user := c.User
	if user == "" {
		user = "root"
	}
	cred := user
	if c.Password != "" {
		cred = user + ":" + c.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", cred, c.Host, c.Port, c.Database)
}

// Open opens a GORM connection for the configured storage driver. A failure
// here is fatal to startup: the scheduler must not run without persistence.
func Open(cfg config.StorageConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.Path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", cfg.Path, err)
		}
		return db, nil
	case "mysql":
		dsn := MySQLDSN(cfg.MySQL)
		db, err := gorm.Open(mysql.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w",
				cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.TicketSnapshot{},
		&models.WatchRegistration{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
