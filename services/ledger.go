package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entrySides maps a transaction type to its (debit, credit) orientation.
// Deposits, referral payouts and escrow releases credit the user;
// withdrawals and fees debit.
func entrySides(txType string, amount decimal.Decimal) (debit, credit decimal.Decimal, err error) {
	zero := decimal.Zero
	switch txType {
	case models.TxTypeDeposit, models.TxTypeReferralPayout, models.TxTypeEscrowRelease:
		return zero, amount, nil
	case models.TxTypeWithdrawal, models.TxTypeFee:
		return amount, zero, nil
	default:
		return zero, zero, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txType)
	}
}

// RecordTransaction posts the ledger entry for a realized transaction and
// refreshes the balance cache. Callers settle the transaction row before
// calling, so the recompute already includes it; the entry's balance
// snapshot comes from that recompute, never from the possibly-stale cache.
func RecordTransaction(tx *models.Transaction) error {
	if tx.UserID == nil {
		return fmt.Errorf("%w: transaction %d has no user", ErrValidation, tx.ID)
	}
	userID := *tx.UserID

	debit, credit, err := entrySides(tx.Type, tx.Amount)
	if err != nil {
		return err
	}

	balance, err := ComputeBalanceFromTransactions(userID)
	if err != nil {
		return err
	}

	entry := models.LedgerEntry{
		TransactionID: tx.ID,
		UserID:        userID,
		Debit:         debit,
		Credit:        credit,
		Balance:       balance.TotalBalance,
		Description:   fmt.Sprintf("%s %s (ref %s)", tx.Type, tx.Amount.StringFixed(2), tx.Reference),
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("create ledger entry for transaction %d: %w", tx.ID, err)
	}

	Notify.BalanceChanged(userID, balance)
	return nil
}

// ComputeBalanceFromTransactions is the authoritative recomputation. It
// scans the user's pending and completed transactions, rebuilds the three
// balances, writes the cache and returns the fresh value.
//
// Only pending referral payouts count toward escrow; other pending types
// stay invisible until they complete.
func ComputeBalanceFromTransactions(userID uint) (*models.UserBalance, error) {
	var txs []models.Transaction
	err := database.DB.
		Where("user_id = ? AND status IN ?", userID, []string{models.TxStatusCompleted, models.TxStatusPending}).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load transactions for user %d: %w", userID, err)
	}

	total := decimal.Zero
	escrow := decimal.Zero
	for _, tx := range txs {
		switch {
		case tx.Type == models.TxTypeReferralPayout && tx.Status == models.TxStatusPending:
			escrow = escrow.Add(tx.Amount)
		case tx.Status != models.TxStatusCompleted:
			// pending deposits/withdrawals don't move anything yet
		case tx.Type == models.TxTypeDeposit, tx.Type == models.TxTypeReferralPayout, tx.Type == models.TxTypeEscrowRelease:
			total = total.Add(tx.Amount)
		case tx.Type == models.TxTypeWithdrawal, tx.Type == models.TxTypeFee:
			total = total.Sub(tx.Amount)
		}
	}

	balance := models.UserBalance{
		UserID:           userID,
		TotalBalance:     total,
		EscrowBalance:    escrow,
		AvailableBalance: total.Sub(escrow),
		LastComputedAt:   time.Now(),
	}
	err = database.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&balance).Error
	if err != nil {
		return nil, fmt.Errorf("upsert balance cache for user %d: %w", userID, err)
	}

	return &balance, nil
}

// GetUserBalance returns the cached balance, falling back to a full
// recompute when the cache is absent or forceRecompute is set. The cache
// is an accelerator, never a second source of truth.
func GetUserBalance(userID uint, forceRecompute bool) (*models.UserBalance, error) {
	if forceRecompute {
		return ComputeBalanceFromTransactions(userID)
	}

	var cached models.UserBalance
	err := database.DB.First(&cached, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ComputeBalanceFromTransactions(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load balance cache for user %d: %w", userID, err)
	}

	helpers.Log.Debugw("balance cache hit", "user_id", userID)
	return &cached, nil
}
