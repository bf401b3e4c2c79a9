package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pantane1/mpesa/config"
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/jobs"
	"github.com/Pantane1/mpesa/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		helpers.Log.Warn("no .env file found, using process environment")
	}
	helpers.InitLogger()

	config.Current = config.Load()
	database.Connect()

	host := os.Getenv("HOST")
	port := os.Getenv("PORT")

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "3000"
	}

	app := fiber.New()
	routes.Setup(app)
	jobs.StartEscrowScheduler()

	addr := fmt.Sprintf("%s:%s", host, port)
	helpers.Log.Infow("server running", "addr", addr)

	go func() {
		if err := app.Listen(addr); err != nil {
			helpers.Log.Fatalw("failed to start server", "error", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	helpers.Log.Info("gracefully shutting down...")
	if err := app.Shutdown(); err != nil {
		helpers.Log.Fatalw("server forced to shutdown", "error", err)
	}
	helpers.Log.Info("server exited cleanly")
}
