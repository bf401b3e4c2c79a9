package routes

import (
	"github.com/Pantane1/mpesa/controllers/admin"
	callback "github.com/Pantane1/mpesa/controllers/callback/mpesa"
	"github.com/Pantane1/mpesa/controllers/user"
	"github.com/Pantane1/mpesa/middlewares"

	"github.com/gofiber/fiber/v2"
)

func Setup(app *fiber.App) {
	app.Post("/signup", user.Signup)

	userroutes := app.Group("/user", middlewares.UserAuthMiddleware)
	userroutes.Get("/balance", user.Balance)
	userroutes.Get("/transactions", user.Transactions)
	userroutes.Post("/withdrawals", user.Withdraw)
	userroutes.Post("/referrals", user.CreateReferral)
	userroutes.Get("/referrals", user.ListReferrals)

	adminroutes := app.Group("/admin", middlewares.UserAuthMiddleware, middlewares.AdminOnly)
	adminroutes.Post("/escrow/release", admin.ReleaseDueEscrows)
	adminroutes.Post("/referrals/cancel", admin.CancelReferral)

	// provider callbacks
	app.Post("/callbacks/mpesa/stk", callback.STKCallback)
}
