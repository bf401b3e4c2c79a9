package middlewares

import (
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"github.com/gofiber/fiber/v2"
)

func UserAuthMiddleware(c *fiber.Ctx) error {
	apiKey := c.Get("X-API-Key")
	if apiKey == "" {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "API_KEY_REQUIRED")
	}

	var user models.User
	if err := database.DB.Where("api_key = ?", apiKey).First(&user).Error; err != nil {
		return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_API_KEY")
	}

	c.Locals("user", user)
	return c.Next()
}
