package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB points the package-level handle at a fresh in-memory
// database and restores everything on cleanup.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	prevDB := database.DB
	prevConfig := config.Current
	database.DB = db
	config.Current = config.Defaults()
	seenCallbacks = &callbackCache{entries: map[string]time.Time{}}

	t.Cleanup(func() {
		database.DB = prevDB
		config.Current = prevConfig
		_ = sqlDB.Close()
	})
}

func itoa(id uint) string {
	return fmt.Sprintf("%d", id)
}

func createTestUser(t *testing.T, email string) *models.User {
	t.Helper()
	user := models.User{
		Email:       email,
		PhoneNumber: "254700000000",
		APIKey:      "key-" + email,
	}
	require.NoError(t, database.DB.Create(&user).Error)
	return &user
}

func createTestTransaction(t *testing.T, userID uint, txType, status, reference string, amount int64) *models.Transaction {
	t.Helper()
	tx := models.Transaction{
		UserID:    &userID,
		Type:      txType,
		Status:    status,
		Reference: reference,
		Amount:    decimal.NewFromInt(amount),
	}
	if status == models.TxStatusCompleted {
		now := time.Now()
		tx.ProcessedAt = &now
	}
	require.NoError(t, database.DB.Create(&tx).Error)
	return &tx
}
