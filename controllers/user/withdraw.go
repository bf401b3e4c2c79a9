package user

import (
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
}

// Withdraw runs the tier limiter and, on approval, records the pending
// withdrawal. The limiter check reserves nothing; the transaction only
// debits the ledger once the payout confirmation completes it.
func Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	actor, ok := c.Locals("user").(models.User)
	if !ok {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SESSION")
	}

	balance, err := services.GetUserBalance(actor.ID, false)
	if err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_LOAD_BALANCE")
	}
	if req.Amount.GreaterThan(balance.AvailableBalance) {
		return helpers.JSONError(c, "INSUFFICIENT_BALANCE")
	}

	check, err := services.CheckWithdrawalLimit(actor.ID, req.Amount)
	if err != nil {
		return helpers.JSONError(c, "INVALID_WITHDRAWAL_AMOUNT")
	}
	if !check.Allowed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": check.Reason,
			"data": fiber.Map{
				"daily_remaining":   check.DailyRemaining,
				"monthly_remaining": check.MonthlyRemaining,
				"current_tier":      check.CurrentTier.Name,
			},
		})
	}

	phone := req.PhoneNumber
	if phone == "" {
		phone = actor.PhoneNumber
	}

	tx := models.Transaction{
		UserID:    &actor.ID,
		Type:      models.TxTypeWithdrawal,
		Amount:    req.Amount,
		Status:    models.TxStatusPending,
		Reference: "WD-" + uuid.New().String(),
		Metadata: datatypes.JSONMap{
			"phone_number": phone,
		},
	}
	if err := database.DB.Create(&tx).Error; err != nil {
		helpers.Log.Errorw("failed to record withdrawal", "user_id", actor.ID, "error", err)
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_RECORD_TRANSACTION")
	}

	services.Audit("withdrawal_requested", "transaction", tx.Reference, &actor.ID, map[string]any{
		"amount": req.Amount.String(),
		"tier":   check.CurrentTier.Name,
	}, &services.RequestContext{IPAddress: c.IP(), UserAgent: c.Get("User-Agent")})

	return helpers.JSONSuccess(c, "Withdrawal requested", fiber.Map{
		"reference":         tx.Reference,
		"daily_remaining":   check.DailyRemaining,
		"monthly_remaining": check.MonthlyRemaining,
		"current_tier":      check.CurrentTier.Name,
	})
}
