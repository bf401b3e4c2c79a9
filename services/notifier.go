package services

import (
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
)

// Notifier pushes change events to whatever realtime layer is attached.
// The core never blocks on delivery and ignores its failures.
type Notifier interface {
	BalanceChanged(userID uint, balance *models.UserBalance)
	TransactionChanged(userID uint, tx *models.Transaction)
	ReferralChanged(userID uint, ref *models.Referral)
}

// Notify is the process-wide notifier. The default just logs; main wires
// a real implementation when a push channel is configured.
var Notify Notifier = logNotifier{}

type logNotifier struct{}

func (logNotifier) BalanceChanged(userID uint, balance *models.UserBalance) {
	helpers.Log.Debugw("balance changed",
		"user_id", userID,
		"available", balance.AvailableBalance,
		"escrow", balance.EscrowBalance,
		"total", balance.TotalBalance,
	)
}

func (logNotifier) TransactionChanged(userID uint, tx *models.Transaction) {
	helpers.Log.Debugw("transaction changed", "user_id", userID, "reference", tx.Reference, "status", tx.Status)
}

func (logNotifier) ReferralChanged(userID uint, ref *models.Referral) {
	helpers.Log.Debugw("referral changed", "user_id", userID, "referral_id", ref.ID, "status", ref.Status)
}
