package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	IdempotencyStatusProcessing = "processing"
	IdempotencyStatusCompleted  = "completed"
	IdempotencyStatusFailed     = "failed"

	// IdempotencyWindow bounds how long a processed callback suppresses
	// replays. Records older than this are purged and the key reusable.
	IdempotencyWindow = 24 * time.Hour
)

// WebhookIdempotency records one processed provider callback, keyed by a
// deterministic hash of the merchant and checkout request ids so replays
// of the same event collide on the same row.
type WebhookIdempotency struct {
	gorm.Model

	IdempotencyKey string            `gorm:"uniqueIndex;size:64" json:"idempotency_key"`
	Status         string            `gorm:"size:16" json:"status"`
	ProcessedAt    *time.Time        `json:"processed_at"`
	Metadata       datatypes.JSONMap `json:"metadata"`
}
