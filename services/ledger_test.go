package services

import (
	"testing"

	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransactionPostsEntryAndRefreshesCache(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-record@example.com")

	tx := createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-1000", 500)
	require.NoError(t, RecordTransaction(tx))

	var entries []models.LedgerEntry
	require.NoError(t, database.DB.Where("user_id = ?", user.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Credit.Equal(decimal.NewFromInt(500)))
	assert.True(t, entries[0].Debit.IsZero())
	assert.Equal(t, tx.ID, entries[0].TransactionID)

	var cached models.UserBalance
	require.NoError(t, database.DB.First(&cached, "user_id = ?", user.ID).Error)
	assert.True(t, cached.TotalBalance.Equal(decimal.NewFromInt(500)))
	assert.True(t, cached.AvailableBalance.Equal(decimal.NewFromInt(500)))
}

func TestRecordTransactionDebitsWithdrawal(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-debit@example.com")

	dep := createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-1001", 1000)
	require.NoError(t, RecordTransaction(dep))

	wd := createTestTransaction(t, user.ID, models.TxTypeWithdrawal, models.TxStatusCompleted, "WD-1", 300)
	require.NoError(t, RecordTransaction(wd))

	var entry models.LedgerEntry
	require.NoError(t, database.DB.Where("transaction_id = ?", wd.ID).First(&entry).Error)
	assert.True(t, entry.Debit.Equal(decimal.NewFromInt(300)))
	assert.True(t, entry.Balance.Equal(decimal.NewFromInt(700)))

	balance, err := GetUserBalance(user.ID, true)
	require.NoError(t, err)
	assert.True(t, balance.TotalBalance.Equal(decimal.NewFromInt(700)))
}

func TestRecordTransactionSnapshotIgnoresStaleCache(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-stale@example.com")

	dep := createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-1003", 1000)
	require.NoError(t, RecordTransaction(dep))

	// a poisoned cache row must not leak into the next entry's snapshot
	require.NoError(t, database.DB.Model(&models.UserBalance{}).
		Where("user_id = ?", user.ID).
		Update("total_balance", decimal.NewFromInt(9999)).Error)

	wd := createTestTransaction(t, user.ID, models.TxTypeWithdrawal, models.TxStatusCompleted, "WD-3", 300)
	require.NoError(t, RecordTransaction(wd))

	var entry models.LedgerEntry
	require.NoError(t, database.DB.Where("transaction_id = ?", wd.ID).First(&entry).Error)
	assert.True(t, entry.Balance.Equal(decimal.NewFromInt(700)), "snapshot = %s", entry.Balance)

	var cached models.UserBalance
	require.NoError(t, database.DB.First(&cached, "user_id = ?", user.ID).Error)
	assert.True(t, cached.TotalBalance.Equal(decimal.NewFromInt(700)))
}

func TestRecordTransactionRejectsUnknownType(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-badtype@example.com")

	tx := createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-1002", 100)
	tx.Type = "chargeback"
	err := RecordTransaction(tx)
	require.ErrorIs(t, err, ErrValidation)
}

func TestComputeBalanceFromTransactions(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-compute@example.com")

	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-1", 1000)
	createTestTransaction(t, user.ID, models.TxTypeWithdrawal, models.TxStatusCompleted, "WD-2", 300)
	createTestTransaction(t, user.ID, models.TxTypeFee, models.TxStatusCompleted, "FEE-1", 50)
	createTestTransaction(t, user.ID, models.TxTypeEscrowRelease, models.TxStatusCompleted, "REF-9", 100)
	createTestTransaction(t, user.ID, models.TxTypeReferralPayout, models.TxStatusPending, "REF-10", 200)
	// a pending deposit moves nothing until it completes
	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusPending, "CO-2", 500)
	// failed and cancelled rows never count
	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusFailed, "CO-3", 900)

	balance, err := ComputeBalanceFromTransactions(user.ID)
	require.NoError(t, err)
	assert.True(t, balance.TotalBalance.Equal(decimal.NewFromInt(750)), "total = %s", balance.TotalBalance)
	assert.True(t, balance.EscrowBalance.Equal(decimal.NewFromInt(200)))
	assert.True(t, balance.AvailableBalance.Equal(decimal.NewFromInt(550)))

	// recomputation with no intervening writes is an idempotent read
	again, err := ComputeBalanceFromTransactions(user.ID)
	require.NoError(t, err)
	assert.True(t, again.TotalBalance.Equal(balance.TotalBalance))
	assert.True(t, again.EscrowBalance.Equal(balance.EscrowBalance))
	assert.True(t, again.AvailableBalance.Equal(balance.AvailableBalance))
}

func TestGetUserBalanceCacheIsNeverAuthoritative(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, "ledger-cache@example.com")

	createTestTransaction(t, user.ID, models.TxTypeDeposit, models.TxStatusCompleted, "CO-5", 400)

	// no cache row yet: read falls back to recompute
	balance, err := GetUserBalance(user.ID, false)
	require.NoError(t, err)
	assert.True(t, balance.TotalBalance.Equal(decimal.NewFromInt(400)))

	// poison the cache; a plain read returns it, force heals it
	require.NoError(t, database.DB.Model(&models.UserBalance{}).
		Where("user_id = ?", user.ID).
		Update("total_balance", decimal.NewFromInt(9999)).Error)

	stale, err := GetUserBalance(user.ID, false)
	require.NoError(t, err)
	assert.True(t, stale.TotalBalance.Equal(decimal.NewFromInt(9999)))

	healed, err := GetUserBalance(user.ID, true)
	require.NoError(t, err)
	assert.True(t, healed.TotalBalance.Equal(decimal.NewFromInt(400)))
}
