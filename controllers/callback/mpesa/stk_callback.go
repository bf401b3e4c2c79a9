package mpesa

import (
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
)

// STKCallback receives the provider's asynchronous payment confirmation.
// Duplicates are acknowledged as success so the provider stops
// redelivering; a processing failure returns a nonzero code to trigger
// redelivery.
func STKCallback(c *fiber.Ctx) error {
	var envelope services.STKCallbackEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ResultCode": 1,
			"ResultDesc": "Invalid payload",
		})
	}

	cb := envelope.Body.STKCallback
	result, err := services.ProcessCallback(&cb)
	if err != nil {
		helpers.Log.Errorw("callback processing failed",
			"checkout_request_id", cb.CheckoutRequestID,
			"error", err,
		)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ResultCode": 1,
			"ResultDesc": "Processing failed",
		})
	}

	if result.Duplicate {
		helpers.Log.Infow("duplicate callback suppressed", "checkout_request_id", cb.CheckoutRequestID)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}
