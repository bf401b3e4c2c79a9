package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tier bounds a user's daily and monthly withdrawal totals. Qualification
// is by completed-transaction count, account age and KYC status.
type Tier struct {
	Name              string          `json:"name"`
	DailyLimit        decimal.Decimal `json:"daily_limit"`
	MonthlyLimit      decimal.Decimal `json:"monthly_limit"`
	MinTransactions   int64           `json:"min_transactions"`
	MinAccountAgeDays int             `json:"min_account_age_days"`
	RequireKYC        bool            `json:"require_kyc"`
}

// withdrawalTiers is ordered ascending; qualification scans from the top.
var withdrawalTiers = []Tier{
	{
		Name:         "basic",
		DailyLimit:   decimal.NewFromInt(5000),
		MonthlyLimit: decimal.NewFromInt(50000),
	},
	{
		Name:              "silver",
		DailyLimit:        decimal.NewFromInt(25000),
		MonthlyLimit:      decimal.NewFromInt(250000),
		MinTransactions:   10,
		MinAccountAgeDays: 30,
	},
	{
		Name:              "gold",
		DailyLimit:        decimal.NewFromInt(100000),
		MonthlyLimit:      decimal.NewFromInt(1000000),
		MinTransactions:   50,
		MinAccountAgeDays: 90,
		RequireKYC:        true,
	},
	{
		Name:              "platinum",
		DailyLimit:        decimal.NewFromInt(500000),
		MonthlyLimit:      decimal.NewFromInt(5000000),
		MinTransactions:   200,
		MinAccountAgeDays: 180,
		RequireKYC:        true,
	},
}

// WithdrawalCheck is the limiter's verdict. It is read-only: nothing is
// debited or reserved by an approval, so the remaining values are a
// simulation of the post-withdrawal state.
type WithdrawalCheck struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
	CurrentTier      Tier            `json:"current_tier"`
}

// GetUserTier scans the tiers from highest to lowest and returns the
// first whose every threshold the user meets. A missing user record
// falls back to the lowest tier rather than erroring.
func GetUserTier(userID uint) (Tier, error) {
	base := withdrawalTiers[0]

	var user models.User
	err := database.DB.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return base, nil
	}
	if err != nil {
		return base, fmt.Errorf("load user %d: %w", userID, err)
	}

	var completed int64
	err = database.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND status = ?", userID, models.TxStatusCompleted).
		Count(&completed).Error
	if err != nil {
		return base, fmt.Errorf("count completed transactions for user %d: %w", userID, err)
	}

	ageDays := int(time.Since(user.CreatedAt).Hours() / 24)

	for i := len(withdrawalTiers) - 1; i >= 0; i-- {
		tier := withdrawalTiers[i]
		if completed < tier.MinTransactions {
			continue
		}
		if ageDays < tier.MinAccountAgeDays {
			continue
		}
		if tier.RequireKYC && !user.KYCVerified {
			continue
		}
		return tier, nil
	}
	return base, nil
}

// CheckWithdrawalLimit verifies a prospective withdrawal against the
// user's tier caps: completed withdrawals since local midnight for the
// daily window and since the first of the month for the monthly one,
// daily checked first.
func CheckWithdrawalLimit(userID uint, amount decimal.Decimal) (*WithdrawalCheck, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrValidation)
	}

	tier, err := GetUserTier(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	dailyUsed, err := sumCompletedWithdrawals(userID, midnight)
	if err != nil {
		return nil, err
	}
	monthlyUsed, err := sumCompletedWithdrawals(userID, monthStart)
	if err != nil {
		return nil, err
	}

	dailyRemaining := tier.DailyLimit.Sub(dailyUsed)
	if dailyRemaining.IsNegative() {
		dailyRemaining = decimal.Zero
	}
	monthlyRemaining := tier.MonthlyLimit.Sub(monthlyUsed)
	if monthlyRemaining.IsNegative() {
		monthlyRemaining = decimal.Zero
	}

	check := &WithdrawalCheck{
		DailyRemaining:   dailyRemaining,
		MonthlyRemaining: monthlyRemaining,
		CurrentTier:      tier,
	}

	settings := config.Current
	switch {
	case amount.LessThan(settings.MinWithdrawalAmount):
		check.Reason = fmt.Sprintf("amount below minimum withdrawal of %s", settings.MinWithdrawalAmount.StringFixed(2))
	case amount.GreaterThan(settings.MaxWithdrawalAmount):
		check.Reason = fmt.Sprintf("amount above maximum withdrawal of %s", settings.MaxWithdrawalAmount.StringFixed(2))
	case amount.GreaterThan(dailyRemaining):
		check.Reason = "daily withdrawal limit exceeded"
	case amount.GreaterThan(monthlyRemaining):
		check.Reason = "monthly withdrawal limit exceeded"
	default:
		check.Allowed = true
		check.DailyRemaining = dailyRemaining.Sub(amount)
		check.MonthlyRemaining = monthlyRemaining.Sub(amount)
	}

	return check, nil
}

func sumCompletedWithdrawals(userID uint, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := database.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND status = ? AND processed_at >= ?",
			userID, models.TxTypeWithdrawal, models.TxStatusCompleted, since).
		Select("COALESCE(SUM(amount), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum withdrawals for user %d: %w", userID, err)
	}
	return total, nil
}
