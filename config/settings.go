package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Settings is the point-in-time snapshot of admin-tunable values the core
// reads. One named field per recognized key; the core never mutates it.
type Settings struct {
	EscrowDelayDays           int
	ReferralVelocityWindow    time.Duration
	ReferralVelocityThreshold int
	FraudCheckEnabled         bool
	MinWithdrawalAmount       decimal.Decimal
	MaxWithdrawalAmount       decimal.Decimal
}

var Current = Defaults()

func Defaults() Settings {
	return Settings{
		EscrowDelayDays:           7,
		ReferralVelocityWindow:    60 * time.Minute,
		ReferralVelocityThreshold: 10,
		FraudCheckEnabled:         true,
		MinWithdrawalAmount:       decimal.NewFromInt(10),
		MaxWithdrawalAmount:       decimal.NewFromInt(150000),
	}
}

// Load reads overrides from the environment on top of the defaults.
func Load() Settings {
	s := Defaults()

	if v, err := strconv.Atoi(os.Getenv("ESCROW_DELAY_DAYS")); err == nil && v > 0 {
		s.EscrowDelayDays = v
	}
	if v, err := strconv.Atoi(os.Getenv("REFERRAL_VELOCITY_WINDOW_MINUTES")); err == nil && v > 0 {
		s.ReferralVelocityWindow = time.Duration(v) * time.Minute
	}
	if v, err := strconv.Atoi(os.Getenv("REFERRAL_VELOCITY_THRESHOLD")); err == nil && v > 0 {
		s.ReferralVelocityThreshold = v
	}
	if v, err := strconv.ParseBool(os.Getenv("FRAUD_CHECK_ENABLED")); err == nil {
		s.FraudCheckEnabled = v
	}
	if v, err := decimal.NewFromString(os.Getenv("MIN_WITHDRAWAL_AMOUNT")); err == nil {
		s.MinWithdrawalAmount = v
	}
	if v, err := decimal.NewFromString(os.Getenv("MAX_WITHDRAWAL_AMOUNT")); err == nil {
		s.MaxWithdrawalAmount = v
	}

	return s
}
