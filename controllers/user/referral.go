package user

import (
	"fmt"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateReferralRequest struct {
	ReferredID uint            `json:"referred_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// CreateReferral gates the request through the fraud check before any
// write. A fraudulent verdict rejects the request and records the block;
// it is not an error.
func CreateReferral(c *fiber.Ctx) error {
	var req CreateReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	actor, ok := c.Locals("user").(models.User)
	if !ok {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SESSION")
	}

	device := services.DeviceInfo{
		FingerprintHash: helpers.DeviceFingerprint(c.Get("User-Agent"), c.IP(), c.Get("Accept-Language")),
		UserAgent:       c.Get("User-Agent"),
		IPAddress:       c.IP(),
	}

	fraud, err := services.PerformFraudCheck(actor.ID, services.ActionReferral, device)
	if err != nil {
		helpers.Log.Errorw("referral fraud check failed", "user_id", actor.ID, "error", err)
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FRAUD_CHECK_FAILED")
	}
	if fraud.IsFraudulent {
		services.Audit("referral_blocked", "referral", fmt.Sprint(req.ReferredID), &actor.ID, map[string]any{
			"risk_score": fraud.RiskScore,
			"reasons":    fraud.Reasons,
		}, &services.RequestContext{IPAddress: c.IP(), UserAgent: c.Get("User-Agent")})
		return helpers.JSONError(c, "REFERRAL_BLOCKED")
	}

	referral, err := services.CreateReferral(actor.ID, req.ReferredID, req.Amount)
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_CREATE_REFERRAL")
	}

	return helpers.JSONSuccess(c, "Referral created", fiber.Map{
		"referral_id":         referral.ID,
		"status":              referral.Status,
		"amount":              referral.Amount,
		"escrow_release_date": referral.EscrowReleaseDate,
		"escrow_delay_days":   config.Current.EscrowDelayDays,
	})
}

// ListReferrals returns the caller's referrals plus the held escrow total.
func ListReferrals(c *fiber.Ctx) error {
	actor, ok := c.Locals("user").(models.User)
	if !ok {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SESSION")
	}

	var referrals []models.Referral
	if err := services.ListReferrals(actor.ID, &referrals); err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_LIST_REFERRALS")
	}

	escrow, err := services.GetEscrowBalance(actor.ID)
	if err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_COMPUTE_ESCROW")
	}

	return helpers.JSONSuccess(c, "Referrals retrieved", fiber.Map{
		"referrals":      referrals,
		"escrow_balance": escrow,
	})
}
