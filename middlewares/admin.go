package middlewares

import (
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"github.com/gofiber/fiber/v2"
)

// AdminOnly runs after UserAuthMiddleware and rejects non-admin actors
// before any privileged write happens.
func AdminOnly(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(models.User)
	if !ok || !user.IsAdmin {
		return helpers.JSONErrorStatus(c, fiber.StatusForbidden, "ADMIN_REQUIRED")
	}
	return c.Next()
}
