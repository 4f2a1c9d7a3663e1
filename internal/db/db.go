// Package db holds the persistent stores behind the coordinator.
package db

import (
	"fmt"
	"log/slog"

	"github.com/leelachesszero/sprt-server/internal/config"
	"github.com/leelachesszero/sprt-server/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// Init connects to the PostgreSQL database named in the configuration.
func Init() error {
	conn := fmt.Sprintf(
		"host=%s user=%s dbname=%s sslmode=disable password=%s",
		config.Config.Database.Host,
		config.Config.Database.User,
		config.Config.Database.Dbname,
		config.Config.Database.Password,
	)
	var err error
	db, err = gorm.Open(postgres.Open(conn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("unable to connect to DB: %w", err)
	}
	slog.Info("database connection established", "host", config.Config.Database.Host)
	return nil
}

// Migrate creates or updates the tables.
func Migrate() error {
	slog.Info("running database migrations")
	if err := db.AutoMigrate(&models.Engine{}, &models.Test{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database migration completed")
	return nil
}

// GetDB returns current database object
func GetDB() *gorm.DB {
	return db
}
