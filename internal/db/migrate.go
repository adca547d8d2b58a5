package db

import (
	"scalpbot/internal/models"
)

// AutoMigrate creates or updates every table the control plane owns.
func AutoMigrate(db *DB) error {
	return db.Gorm.AutoMigrate(
		&models.Command{},
		&models.AuditLogEntry{},
		&models.Trade{},
		&models.Position{},
		&models.DailyStat{},
		&models.BotStatus{},
	)
}
