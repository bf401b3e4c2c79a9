package services

import (
	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"gorm.io/datatypes"
)

// RequestContext carries the client attributes worth keeping on an audit
// row. Zero value is fine for system-originated actions.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Audit writes an audit row fire-and-forget. Observability must never
// abort a business operation, so failures are logged and swallowed.
func Audit(action, resourceType, resourceID string, actorUserID *uint, changes map[string]any, reqCtx *RequestContext) {
	row := models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorUserID:  actorUserID,
		Changes:      datatypes.JSONMap(changes),
	}
	if reqCtx != nil {
		row.IPAddress = reqCtx.IPAddress
		row.UserAgent = reqCtx.UserAgent
	}

	if err := database.DB.Create(&row).Error; err != nil {
		helpers.Log.Warnw("audit write failed",
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err,
		)
	}
}
