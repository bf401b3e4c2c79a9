package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func referralReference(referralID uint) string {
	return fmt.Sprintf("REF-%d", referralID)
}

// CreateReferral inserts a referral held in escrow until the configured
// delay elapses, plus the correlated pending payout transaction. The two
// inserts are sequential; a failure after the first leaves a referral the
// recompute path simply will not count.
func CreateReferral(referrerID, referredID uint, amount decimal.Decimal) (*models.Referral, error) {
	if referrerID == 0 || referredID == 0 {
		return nil, fmt.Errorf("%w: referrer and referred ids are required", ErrValidation)
	}
	if referrerID == referredID {
		return nil, fmt.Errorf("%w: self-referral is not allowed", ErrValidation)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: referral amount must be positive", ErrValidation)
	}

	releaseDate := time.Now().AddDate(0, 0, config.Current.EscrowDelayDays)
	referral := models.Referral{
		ReferrerID:        referrerID,
		ReferredID:        referredID,
		Amount:            amount,
		Status:            models.ReferralStatusEscrow,
		EscrowReleaseDate: &releaseDate,
	}
	if err := database.DB.Create(&referral).Error; err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}

	tx := models.Transaction{
		UserID:    &referrerID,
		Type:      models.TxTypeReferralPayout,
		Amount:    amount,
		Status:    models.TxStatusPending,
		Reference: referralReference(referral.ID),
		Metadata: datatypes.JSONMap{
			"referral_id": referral.ID,
			"referred_id": referredID,
		},
	}
	if err := database.DB.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("create payout transaction for referral %d: %w", referral.ID, err)
	}

	Notify.ReferralChanged(referrerID, &referral)
	return &referral, nil
}

// ProcessEscrowReleases sweeps all referrals whose escrow delay has
// elapsed. A failure on one referral is logged and the sweep continues;
// only the selection query itself can fail the sweep.
func ProcessEscrowReleases() (int, error) {
	var due []models.Referral
	err := database.DB.
		Where("status = ? AND escrow_release_date <= ?", models.ReferralStatusEscrow, time.Now()).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("select due referrals: %w", err)
	}

	released := 0
	for _, ref := range due {
		if err := ReleaseEscrow(ref.ID); err != nil {
			helpers.Log.Errorw("escrow release failed", "referral_id", ref.ID, "error", err)
			continue
		}
		released++
	}

	if len(due) > 0 {
		helpers.Log.Infow("escrow sweep finished", "due", len(due), "released", released)
	}
	return released, nil
}

// ReleaseEscrow settles one referral: referral escrow -> paid, correlated
// transaction pending -> completed (as an escrow release), then the ledger
// credit. Both status flips are conditional writes; zero rows affected
// means another sweep already handled the row and is not an error.
func ReleaseEscrow(referralID uint) error {
	var referral models.Referral
	err := database.DB.First(&referral, referralID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: referral %d", ErrNotFound, referralID)
	}
	if err != nil {
		return fmt.Errorf("load referral %d: %w", referralID, err)
	}

	switch referral.Status {
	case models.ReferralStatusPaid:
		return nil
	case models.ReferralStatusEscrow:
	default:
		return fmt.Errorf("%w: referral %d is %s, not releasable", ErrValidation, referralID, referral.Status)
	}

	if referral.EscrowReleaseDate == nil || referral.EscrowReleaseDate.After(time.Now()) {
		return fmt.Errorf("%w: referral %d escrow has not matured", ErrValidation, referralID)
	}

	res := database.DB.Model(&models.Referral{}).
		Where("id = ? AND status = ?", referralID, models.ReferralStatusEscrow).
		Update("status", models.ReferralStatusPaid)
	if res.Error != nil {
		return fmt.Errorf("mark referral %d paid: %w", referralID, res.Error)
	}
	if res.RowsAffected == 0 {
		helpers.Log.Infow("referral already handled by a concurrent release", "referral_id", referralID)
		return nil
	}

	now := time.Now()
	ref := referralReference(referralID)
	res = database.DB.Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", ref, models.TxStatusPending).
		Updates(map[string]any{
			"type":         models.TxTypeEscrowRelease,
			"status":       models.TxStatusCompleted,
			"processed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete payout transaction %s: %w", ref, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: pending transaction %s", ErrNotFound, ref)
	}

	var tx models.Transaction
	if err := database.DB.First(&tx, "reference = ?", ref).Error; err != nil {
		return fmt.Errorf("reload transaction %s: %w", ref, err)
	}

	if err := RecordTransaction(&tx); err != nil {
		return err
	}

	referral.Status = models.ReferralStatusPaid
	Notify.ReferralChanged(referral.ReferrerID, &referral)
	Audit("escrow_released", "referral", fmt.Sprint(referralID), nil, map[string]any{
		"amount":      referral.Amount.String(),
		"referrer_id": referral.ReferrerID,
	}, nil)
	return nil
}

// CancelReferral ends an escrowed referral before release. Cancellation
// never reverses a posted ledger entry; it is only meaningful pre-release.
func CancelReferral(referralID uint, reason string) error {
	var referral models.Referral
	err := database.DB.First(&referral, referralID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: referral %d", ErrNotFound, referralID)
	}
	if err != nil {
		return fmt.Errorf("load referral %d: %w", referralID, err)
	}

	meta := referral.Metadata
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	meta["cancel_reason"] = reason

	res := database.DB.Model(&models.Referral{}).
		Where("id = ? AND status IN ?", referralID, []string{models.ReferralStatusPending, models.ReferralStatusEscrow}).
		Updates(map[string]any{
			"status":   models.ReferralStatusCancelled,
			"metadata": meta,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel referral %d: %w", referralID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: referral %d is %s, not cancellable", ErrValidation, referralID, referral.Status)
	}

	res = database.DB.Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", referralReference(referralID), models.TxStatusPending).
		Update("status", models.TxStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel payout transaction for referral %d: %w", referralID, res.Error)
	}

	Audit("referral_cancelled", "referral", fmt.Sprint(referralID), nil, map[string]any{"reason": reason}, nil)
	return nil
}

// ListReferrals loads a referrer's referrals, newest first.
func ListReferrals(referrerID uint, out *[]models.Referral) error {
	err := database.DB.
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(out).Error
	if err != nil {
		return fmt.Errorf("list referrals for user %d: %w", referrerID, err)
	}
	return nil
}

// GetEscrowBalance derives the user's held amount straight from referral
// rows, independently of the ledger's transaction-based derivation. The
// two must agree outside of an in-flight release.
func GetEscrowBalance(userID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := database.DB.Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ?", userID, models.ReferralStatusEscrow).
		Select("COALESCE(SUM(amount), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum escrow referrals for user %d: %w", userID, err)
	}
	return total, nil
}
