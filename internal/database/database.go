package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tillpoint/controlplane/internal/models"
)

// Connect opens the SQLite database at dbPath with a busy timeout and WAL
// journaling so request handlers and the background scan can share it.
func Connect(dbPath string) (*gorm.DB, error) {
	dsn := withPragmas(dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	return db, nil
}

func withPragmas(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

// Migrate creates or updates every table the control plane owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AdminAccount{},
		&models.AuditLog{},
		&models.Alert{},
		&models.Tenant{},
		&models.License{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
