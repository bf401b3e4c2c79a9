package user

import (
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
)

// Balance returns the cached balance; ?recompute=true forces the
// authoritative recomputation path.
func Balance(c *fiber.Ctx) error {
	actor, ok := c.Locals("user").(models.User)
	if !ok {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SESSION")
	}

	force := c.Query("recompute") == "true"
	balance, err := services.GetUserBalance(actor.ID, force)
	if err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_LOAD_BALANCE")
	}

	return helpers.JSONSuccess(c, "Balance retrieved", fiber.Map{
		"available_balance": balance.AvailableBalance,
		"escrow_balance":    balance.EscrowBalance,
		"total_balance":     balance.TotalBalance,
		"last_computed_at":  balance.LastComputedAt,
	})
}

// Transactions lists the caller's monetary history, newest first.
func Transactions(c *fiber.Ctx) error {
	actor, ok := c.Locals("user").(models.User)
	if !ok {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SESSION")
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var txs []models.Transaction
	err := database.DB.
		Where("user_id = ?", actor.ID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_LIST_TRANSACTIONS")
	}

	return helpers.JSONSuccess(c, "Transactions retrieved", fiber.Map{
		"transactions": txs,
	})
}
