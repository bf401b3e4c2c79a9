package jobs

import (
	"os"
	"strconv"
	"time"

	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/services"
	"github.com/Pantane1/mpesa/task"
)

// StartEscrowScheduler drives the periodic escrow settlement sweep and
// the idempotency-record purge.
func StartEscrowScheduler() {
	interval := 10 * time.Minute
	if v, err := strconv.Atoi(os.Getenv("ESCROW_SWEEP_INTERVAL_MINUTES")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Minute
	}

	tickerSweep := time.NewTicker(interval)
	go func() {
		for {
			<-tickerSweep.C
			if _, err := services.ProcessEscrowReleases(); err != nil {
				helpers.Log.Errorw("escrow sweep failed", "error", err)
			}
		}
	}()

	tickerPurge := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			<-tickerPurge.C
			task.CleanupExpiredIdempotencyRecords()
		}
	}()
}
