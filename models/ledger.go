package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is an append-only debit/credit posting derived from one
// realized transaction state change. Balance is a snapshot taken at
// posting time, never recomputed retroactively.
type LedgerEntry struct {
	gorm.Model

	TransactionID uint            `gorm:"index" json:"transaction_id"`
	UserID        uint            `gorm:"index" json:"user_id"`
	Debit         decimal.Decimal `gorm:"type:numeric(20,2)" json:"debit"`
	Credit        decimal.Decimal `gorm:"type:numeric(20,2)" json:"credit"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,2)" json:"balance"`
	Description   string          `gorm:"size:255" json:"description"`
}

// UserBalance is a derived cache, always reconstructable from the
// transactions table. AvailableBalance = TotalBalance - EscrowBalance.
type UserBalance struct {
	UserID           uint            `gorm:"primaryKey" json:"user_id"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(20,2)" json:"available_balance"`
	EscrowBalance    decimal.Decimal `gorm:"type:numeric(20,2)" json:"escrow_balance"`
	TotalBalance     decimal.Decimal `gorm:"type:numeric(20,2)" json:"total_balance"`
	LastComputedAt   time.Time       `json:"last_computed_at"`
}
