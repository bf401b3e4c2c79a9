package services

import (
	"testing"
	"time"

	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func successCallback(merchant, checkout string, amount float64) *STKCallback {
	cb := &STKCallback{
		MerchantRequestID: merchant,
		CheckoutRequestID: checkout,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	}
	cb.CallbackMetadata.Item = []CallbackItem{
		{Name: "Amount", Value: amount},
		{Name: "MpesaReceiptNumber", Value: "RKT12345"},
		{Name: "PhoneNumber", Value: 254700000001},
	}
	return cb
}

func TestCallbackSuccessCompletesTransaction(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "hook-success@example.com")
	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusPending, "ws_CO_1", 500)

	result, err := ProcessCallback(successCallback("29115-34620561-1", "ws_CO_1", 500))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	var tx models.Transaction
	require.NoError(t, database.DB.First(&tx, "reference = ?", "ws_CO_1").Error)
	assert.Equal(t, models.TxStatusCompleted, tx.Status)
	require.NotNil(t, tx.ProcessedAt)
	assert.Equal(t, "RKT12345", tx.Metadata["mpesa_receipt_number"])

	var entries []models.LedgerEntry
	require.NoError(t, database.DB.Where("user_id = ?", user.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Credit.Equal(decimal.NewFromInt(500)))
}

func TestCallbackIdempotency(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "hook-idem@example.com")
	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusPending, "ws_CO_2", 300)

	first, err := ProcessCallback(successCallback("29115-34620561-2", "ws_CO_2", 300))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := ProcessCallback(successCallback("29115-34620561-2", "ws_CO_2", 300))
	require.NoError(t, err)
	assert.True(t, second.Duplicate, "replay inside the window must be a no-op")

	var entries []models.LedgerEntry
	require.NoError(t, database.DB.Where("user_id = ?", user.ID).Find(&entries).Error)
	assert.Len(t, entries, 1, "a replayed event must not post a second credit")

	// the persistent record backs the fast path even across restarts
	seenCallbacks.entries = map[string]time.Time{}
	third, err := ProcessCallback(successCallback("29115-34620561-2", "ws_CO_2", 300))
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
}

func TestCallbackSignupCreatesUserOnce(t *testing.T) {
	setupTestDB(t)

	tx := models.Transaction{
		Type:      models.TxTypeDeposit,
		Status:    models.TxStatusPending,
		Reference: "ws_CO_3",
		Amount:    decimal.NewFromInt(200),
		Metadata: datatypes.JSONMap{
			"signup":           true,
			"email":            "newuser@example.com",
			"fingerprint_hash": "abc123",
			"user_agent":       "test-agent",
			"ip_address":       "10.0.0.1",
		},
	}
	require.NoError(t, database.DB.Create(&tx).Error)

	_, err := ProcessCallback(successCallback("29115-34620561-3", "ws_CO_3", 200))
	require.NoError(t, err)

	var users []models.User
	require.NoError(t, database.DB.Where("email = ?", "newuser@example.com").Find(&users).Error)
	require.Len(t, users, 1)

	var device models.UserDevice
	require.NoError(t, database.DB.First(&device, "user_id = ?", users[0].ID).Error)
	assert.Equal(t, "abc123", device.FingerprintHash)

	var reloaded models.Transaction
	require.NoError(t, database.DB.First(&reloaded, "reference = ?", "ws_CO_3").Error)
	require.NotNil(t, reloaded.UserID)
	assert.Equal(t, users[0].ID, *reloaded.UserID)
	assert.Equal(t, models.TxStatusCompleted, reloaded.Status)

	balance, err := GetUserBalance(users[0].ID, true)
	require.NoError(t, err)
	assert.True(t, balance.TotalBalance.Equal(decimal.NewFromInt(200)))

	// a replay must not mint a second account
	result, err := ProcessCallback(successCallback("29115-34620561-3", "ws_CO_3", 200))
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	require.NoError(t, database.DB.Where("email = ?", "newuser@example.com").Find(&users).Error)
	assert.Len(t, users, 1)
}

func TestCallbackSignupAttachesExistingUser(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "existing@example.com")

	tx := models.Transaction{
		Type:      models.TxTypeDeposit,
		Status:    models.TxStatusPending,
		Reference: "ws_CO_4",
		Amount:    decimal.NewFromInt(150),
		Metadata: datatypes.JSONMap{
			"signup": true,
			"email":  "existing@example.com",
		},
	}
	require.NoError(t, database.DB.Create(&tx).Error)

	_, err := ProcessCallback(successCallback("29115-34620561-4", "ws_CO_4", 150))
	require.NoError(t, err)

	var reloaded models.Transaction
	require.NoError(t, database.DB.First(&reloaded, "reference = ?", "ws_CO_4").Error)
	require.NotNil(t, reloaded.UserID)
	assert.Equal(t, user.ID, *reloaded.UserID)

	var count int64
	require.NoError(t, database.DB.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCallbackFailureMarksTransactionFailed(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "hook-fail@example.com")
	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusPending, "ws_CO_5", 400)

	cb := &STKCallback{
		MerchantRequestID: "29115-34620561-5",
		CheckoutRequestID: "ws_CO_5",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}
	result, err := ProcessCallback(cb)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	var tx models.Transaction
	require.NoError(t, database.DB.First(&tx, "reference = ?", "ws_CO_5").Error)
	assert.Equal(t, models.TxStatusFailed, tx.Status)
	assert.Equal(t, "Request cancelled by user", tx.Metadata["error_description"])

	var entries int64
	require.NoError(t, database.DB.Model(&models.LedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, entries, "failed transactions never reach the ledger")
}

func TestCallbackMissingCorrelationIDs(t *testing.T) {
	setupTestDB(t)
	_, err := ProcessCallback(&STKCallback{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCallbackUnknownTransaction(t *testing.T) {
	setupTestDB(t)
	_, err := ProcessCallback(successCallback("29115-34620561-6", "ws_CO_MISSING", 100))
	require.ErrorIs(t, err, ErrNotFound)

	var record models.WebhookIdempotency
	require.NoError(t, database.DB.First(&record).Error)
	assert.Equal(t, models.IdempotencyStatusFailed, record.Status)
}

func TestCallbackRedeliveryAfterFailureReprocesses(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "hook-retry@example.com")

	// First delivery arrives before the pending transaction exists and
	// fails, leaving behind a failed record. We answer the provider with
	// a retry code, so the same event will come back.
	_, err := ProcessCallback(successCallback("29115-34620561-7", "ws_CO_7", 500))
	require.ErrorIs(t, err, ErrNotFound)

	var record models.WebhookIdempotency
	require.NoError(t, database.DB.First(&record).Error)
	assert.Equal(t, models.IdempotencyStatusFailed, record.Status)

	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusPending, "ws_CO_7", 500)

	result, err := ProcessCallback(successCallback("29115-34620561-7", "ws_CO_7", 500))
	require.NoError(t, err)
	assert.False(t, result.Duplicate, "a failed attempt must not swallow the retry")

	var tx models.Transaction
	require.NoError(t, database.DB.First(&tx, "reference = ?", "ws_CO_7").Error)
	assert.Equal(t, models.TxStatusCompleted, tx.Status)

	var entries []models.LedgerEntry
	require.NoError(t, database.DB.Where("user_id = ?", user.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Credit.Equal(decimal.NewFromInt(500)))

	require.NoError(t, database.DB.First(&record).Error)
	assert.Equal(t, models.IdempotencyStatusCompleted, record.Status)

	// and once settled, further replays are true duplicates
	replay, err := ProcessCallback(successCallback("29115-34620561-7", "ws_CO_7", 500))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
}
