package database

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Connect() {
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	name := os.Getenv("DB_NAME")
	sslmode := os.Getenv("DB_SSLMODE")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, pass, name, port, sslmode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		helpers.Log.Fatalw("failed to connect to database", "error", err)
	}

	DB = db
	helpers.Log.Infow("connected to database", "host", host, "name", name)

	autoMigrateEnv := os.Getenv("DB_AUTO_MIGRATE")
	autoMigrate, err := strconv.ParseBool(autoMigrateEnv)
	if err != nil && autoMigrateEnv != "" {
		helpers.Log.Warnw("invalid value for DB_AUTO_MIGRATE", "value", autoMigrateEnv)
	}

	if autoMigrate {
		if err := Migrate(DB); err != nil {
			helpers.Log.Fatalw("failed to auto-migrate database", "error", err)
		}
		helpers.Log.Info("auto migration completed")
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserDevice{},
		&models.Transaction{},
		&models.LedgerEntry{},
		&models.UserBalance{},
		&models.Referral{},
		&models.WebhookIdempotency{},
		&models.AuditLog{},
	)
}
