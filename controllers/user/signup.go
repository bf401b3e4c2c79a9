package user

import (
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
	"github.com/Pantane1/mpesa/providers/mpesa"
	"github.com/Pantane1/mpesa/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// STKPusher lets tests swap out the live payment client.
type STKPusher interface {
	STKPush(phoneNumber string, amount decimal.Decimal, accountRef, description string) (*mpesa.STKPushResponse, error)
}

var Payments STKPusher

func payments() STKPusher {
	if Payments == nil {
		Payments = mpesa.NewClient()
	}
	return Payments
}

type SignupRequest struct {
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

// Signup starts account creation: the user record only materializes when
// the payment confirmation callback lands, so everything needed to finish
// signup rides on the pending transaction's metadata.
func Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	if req.Email == "" || req.PhoneNumber == "" {
		return helpers.JSONError(c, "EMAIL_AND_PHONE_REQUIRED")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return helpers.JSONError(c, "AMOUNT_MUST_BE_POSITIVE")
	}

	device := services.DeviceInfo{
		FingerprintHash: helpers.DeviceFingerprint(c.Get("User-Agent"), c.IP(), c.Get("Accept-Language")),
		UserAgent:       c.Get("User-Agent"),
		IPAddress:       c.IP(),
	}

	fraud, err := services.PerformFraudCheck(0, services.ActionSignup, device)
	if err != nil {
		helpers.Log.Errorw("signup fraud check failed", "email", req.Email, "error", err)
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FRAUD_CHECK_FAILED")
	}
	if fraud.IsFraudulent {
		services.Audit("signup_blocked", "user", req.Email, nil, map[string]any{
			"risk_score": fraud.RiskScore,
			"reasons":    fraud.Reasons,
		}, &services.RequestContext{IPAddress: c.IP(), UserAgent: c.Get("User-Agent")})
		return helpers.JSONError(c, "SIGNUP_BLOCKED")
	}

	push, err := payments().STKPush(req.PhoneNumber, req.Amount, req.Email, "Account signup deposit")
	if err != nil {
		helpers.Log.Errorw("stk push failed", "email", req.Email, "error", err)
		return helpers.JSONErrorStatus(c, fiber.StatusBadGateway, "PAYMENT_INITIATION_FAILED")
	}

	tx := models.Transaction{
		Type:      models.TxTypeDeposit,
		Amount:    req.Amount,
		Status:    models.TxStatusPending,
		Reference: push.CheckoutRequestID,
		Metadata: datatypes.JSONMap{
			"signup":              true,
			"email":               req.Email,
			"merchant_request_id": push.MerchantRequestID,
			"fingerprint_hash":    device.FingerprintHash,
			"user_agent":          device.UserAgent,
			"ip_address":          device.IPAddress,
		},
	}
	if err := database.DB.Create(&tx).Error; err != nil {
		helpers.Log.Errorw("failed to record signup transaction", "reference", push.CheckoutRequestID, "error", err)
		return helpers.JSONErrorStatus(c, fiber.StatusInternalServerError, "FAILED_TO_RECORD_TRANSACTION")
	}

	return helpers.JSONSuccess(c, "Signup payment initiated", fiber.Map{
		"reference":        push.CheckoutRequestID,
		"customer_message": push.CustomerMessage,
	})
}
