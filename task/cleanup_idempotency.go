package task

import (
	"time"

	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"
)

// CleanupExpiredIdempotencyRecords hard-deletes idempotency rows past the
// replay window so their keys become reusable. A soft delete would keep
// the unique key occupied.
func CleanupExpiredIdempotencyRecords() {
	cutoff := time.Now().Add(-models.IdempotencyWindow)
	result := database.DB.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.WebhookIdempotency{})

	if result.Error != nil {
		helpers.Log.Errorw("failed to purge expired idempotency records", "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		helpers.Log.Infow("purged expired idempotency records", "count", result.RowsAffected)
	}
}
