package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TxTypeDeposit        = "deposit"
	TxTypeWithdrawal     = "withdrawal"
	TxTypeReferralPayout = "referral_payout"
	TxTypeEscrowRelease  = "escrow_release"
	TxTypeFee            = "fee"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Transaction is the source of truth for every monetary event. Rows are
// never deleted; only Webhook processing and escrow settlement flip status.
type Transaction struct {
	gorm.Model

	// UserID stays nil for signup deposits until the confirmation
	// callback resolves or creates the user.
	UserID      *uint             `gorm:"index" json:"user_id"`
	Type        string            `gorm:"size:32;index" json:"type"`
	Amount      decimal.Decimal   `gorm:"type:numeric(20,2)" json:"amount"`
	Status      string            `gorm:"size:16;index" json:"status"`
	Reference   string            `gorm:"uniqueIndex;size:64" json:"reference"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	ProcessedAt *time.Time        `json:"processed_at"`
}
