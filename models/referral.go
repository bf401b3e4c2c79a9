package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ReferralStatusPending   = "pending"
	ReferralStatusEscrow    = "escrow"
	ReferralStatusPaid      = "paid"
	ReferralStatusCancelled = "cancelled"
)

// Referral holds a payout owed to the referrer during the escrow delay.
// Transitions are monotonic: escrow -> paid or escrow -> cancelled.
// The correlated transaction carries reference "REF-<referral id>".
type Referral struct {
	gorm.Model

	ReferrerID        uint              `gorm:"index" json:"referrer_id"`
	ReferredID        uint              `gorm:"index" json:"referred_id"`
	Amount            decimal.Decimal   `gorm:"type:numeric(20,2)" json:"amount"`
	Status            string            `gorm:"size:16;index" json:"status"`
	EscrowReleaseDate *time.Time        `gorm:"index" json:"escrow_release_date"`
	Metadata          datatypes.JSONMap `json:"metadata"`
}
