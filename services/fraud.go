package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/models"

	"gorm.io/gorm"
)

// FraudCheckResult is the gate's verdict. It is a normal value, not an
// error: a fraudulent result makes the caller reject the originating
// request and record the block.
type FraudCheckResult struct {
	IsFraudulent bool     `json:"is_fraudulent"`
	RiskScore    int      `json:"risk_score"`
	Reasons      []string `json:"reasons"`
}

type DeviceInfo struct {
	FingerprintHash string
	UserAgent       string
	IPAddress       string
}

const (
	ActionSignup   = "signup"
	ActionReferral = "referral"

	fraudThreshold = 70
)

// CheckDeviceFingerprint scores the device against the fingerprint
// history and upserts the current association regardless of outcome.
// userID zero means no account exists yet (signup), where any known
// association counts as foreign.
func CheckDeviceFingerprint(userID uint, device DeviceInfo) (*FraudCheckResult, error) {
	result := &FraudCheckResult{Reasons: []string{}}
	if device.FingerprintHash == "" {
		return result, nil
	}

	q := database.DB.Model(&models.UserDevice{}).Where("fingerprint_hash = ?", device.FingerprintHash)
	if userID != 0 {
		q = q.Where("user_id <> ?", userID)
	}
	var foreign int64
	if err := q.Count(&foreign).Error; err != nil {
		return nil, fmt.Errorf("count foreign fingerprint associations: %w", err)
	}
	if foreign > 0 {
		result.RiskScore += 50
		result.Reasons = append(result.Reasons, "device fingerprint already associated with another account")
	}

	if userID != 0 {
		var devices int64
		err := database.DB.Model(&models.UserDevice{}).
			Where("user_id = ? AND last_seen_at >= ?", userID, time.Now().AddDate(0, 0, -30)).
			Count(&devices).Error
		if err != nil {
			return nil, fmt.Errorf("count recent devices for user %d: %w", userID, err)
		}
		if devices > 3 {
			result.RiskScore += 30
			result.Reasons = append(result.Reasons, "more than 3 devices seen recently on this account")
		}

		if err := upsertDevice(userID, device); err != nil {
			return nil, err
		}
	}

	result.IsFraudulent = result.RiskScore >= fraudThreshold
	return result, nil
}

func upsertDevice(userID uint, device DeviceInfo) error {
	var existing models.UserDevice
	err := database.DB.
		Where("user_id = ? AND fingerprint_hash = ?", userID, device.FingerprintHash).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := models.UserDevice{
			UserID:          userID,
			FingerprintHash: device.FingerprintHash,
			UserAgent:       device.UserAgent,
			IPAddress:       device.IPAddress,
			LastSeenAt:      time.Now(),
		}
		if err := database.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("create device record for user %d: %w", userID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load device record for user %d: %w", userID, err)
	}

	return database.DB.Model(&existing).Updates(map[string]any{
		"user_agent":   device.UserAgent,
		"ip_address":   device.IPAddress,
		"last_seen_at": time.Now(),
	}).Error
}

// CheckReferralVelocity scores how fast the referrer is creating
// referrals inside the configured window. Hitting the hard threshold is
// an immediate maximum-risk verdict.
func CheckReferralVelocity(referrerID uint) (*FraudCheckResult, error) {
	result := &FraudCheckResult{Reasons: []string{}}

	since := time.Now().Add(-config.Current.ReferralVelocityWindow)
	var count int64
	err := database.DB.Model(&models.Referral{}).
		Where("referrer_id = ? AND created_at >= ?", referrerID, since).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("count recent referrals for user %d: %w", referrerID, err)
	}

	switch {
	case count >= int64(config.Current.ReferralVelocityThreshold):
		result.RiskScore = 100
		result.IsFraudulent = true
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("%d referrals within the velocity window", count))
	case count >= 5:
		result.RiskScore += 40
		result.Reasons = append(result.Reasons, "high referral velocity")
	case count >= 3:
		result.RiskScore += 20
		result.Reasons = append(result.Reasons, "moderate referral velocity")
	}

	result.IsFraudulent = result.IsFraudulent || result.RiskScore >= fraudThreshold
	return result, nil
}

// CheckReferralAbuse looks for structural abuse in the referrer's
// history: circular referral pairs, duplicate referred accounts, and
// bursts of referrals in a short span.
func CheckReferralAbuse(referrerID uint) (*FraudCheckResult, error) {
	result := &FraudCheckResult{Reasons: []string{}}

	var referrals []models.Referral
	err := database.DB.
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&referrals).Error
	if err != nil {
		return nil, fmt.Errorf("load referrals for user %d: %w", referrerID, err)
	}
	if len(referrals) == 0 {
		return result, nil
	}

	referredIDs := make([]uint, 0, len(referrals))
	distinct := make(map[uint]struct{}, len(referrals))
	for _, ref := range referrals {
		referredIDs = append(referredIDs, ref.ReferredID)
		distinct[ref.ReferredID] = struct{}{}
	}

	var circular int64
	err = database.DB.Model(&models.Referral{}).
		Where("referrer_id IN ? AND referred_id = ?", referredIDs, referrerID).
		Count(&circular).Error
	if err != nil {
		return nil, fmt.Errorf("check circular referrals for user %d: %w", referrerID, err)
	}
	if circular > 0 {
		result.RiskScore += 60
		result.Reasons = append(result.Reasons, "circular referral pattern detected")
	}

	if len(distinct) < len(referrals) {
		result.RiskScore += 50
		result.Reasons = append(result.Reasons, "duplicate referrals to the same account")
	}

	recent := referrals
	if len(recent) > 20 {
		recent = recent[:20]
	}
	if len(recent) >= 10 {
		span := recent[0].CreatedAt.Sub(recent[len(recent)-1].CreatedAt)
		if span < 24*time.Hour {
			result.RiskScore += 70
			result.Reasons = append(result.Reasons, "rapid referral pattern within 24 hours")
		}
	}

	result.IsFraudulent = result.RiskScore >= fraudThreshold
	return result, nil
}

// PerformFraudCheck is the aggregate gate. The device check always runs;
// velocity and abuse checks run for referral actions. Sub-scores add up,
// capped at 100; the verdict is fraudulent if any sub-check was or the
// capped sum crosses the threshold.
func PerformFraudCheck(userID uint, action string, device DeviceInfo) (*FraudCheckResult, error) {
	if !config.Current.FraudCheckEnabled {
		return &FraudCheckResult{Reasons: []string{}}, nil
	}

	combined := &FraudCheckResult{Reasons: []string{}}

	deviceResult, err := CheckDeviceFingerprint(userID, device)
	if err != nil {
		return nil, err
	}
	merge(combined, deviceResult)

	if action == ActionReferral {
		velocity, err := CheckReferralVelocity(userID)
		if err != nil {
			return nil, err
		}
		merge(combined, velocity)
		if velocity.RiskScore >= 100 {
			// hard velocity hit short-circuits the remaining checks
			cap100(combined)
			return combined, nil
		}

		abuse, err := CheckReferralAbuse(userID)
		if err != nil {
			return nil, err
		}
		merge(combined, abuse)
	}

	cap100(combined)
	return combined, nil
}

func merge(into, from *FraudCheckResult) {
	into.RiskScore += from.RiskScore
	into.Reasons = append(into.Reasons, from.Reasons...)
	into.IsFraudulent = into.IsFraudulent || from.IsFraudulent
}

func cap100(r *FraudCheckResult) {
	if r.RiskScore > 100 {
		r.RiskScore = 100
	}
	r.IsFraudulent = r.IsFraudulent || r.RiskScore >= fraudThreshold
}
