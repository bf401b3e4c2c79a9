package admin

import (
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
)

// ReleaseDueEscrows triggers the settlement sweep on demand, alongside
// the scheduled one.
func ReleaseDueEscrows(c *fiber.Ctx) error {
	actor, _ := c.Locals("user").(models.User)

	released, err := services.ProcessEscrowReleases()
	if err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "SWEEP_FAILED")
	}

	services.Audit("escrow_sweep_triggered", "referral", "sweep", &actor.ID, map[string]any{
		"released": released,
	}, &services.RequestContext{IPAddress: c.IP(), UserAgent: c.Get("User-Agent")})

	return helpers.JSONSuccess(c, "Escrow sweep completed", fiber.Map{
		"released": released,
	})
}

// CancelReferral voids an escrowed referral before release.
func CancelReferral(c *fiber.Ctx) error {
	actor, _ := c.Locals("user").(models.User)

	var req struct {
		ReferralID uint   `json:"referral_id"`
		Reason     string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.ReferralID == 0 {
		return helpers.JSONError(c, "REFERRAL_ID_REQUIRED")
	}

	if err := services.CancelReferral(req.ReferralID, req.Reason); err != nil {
		helpers.Log.Warnw("referral cancellation failed", "referral_id", req.ReferralID, "actor", actor.ID, "error", err)
		return helpers.JSONError(c, "FAILED_TO_CANCEL_REFERRAL")
	}

	return helpers.JSONSuccess(c, "Referral cancelled", fiber.Map{
		"referral_id": req.ReferralID,
	})
}
