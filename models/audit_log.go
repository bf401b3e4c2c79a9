package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	gorm.Model

	Action       string            `gorm:"size:64;index" json:"action"`
	ResourceType string            `gorm:"size:32;index" json:"resource_type"`
	ResourceID   string            `gorm:"size:64" json:"resource_id"`
	ActorUserID  *uint             `gorm:"index" json:"actor_user_id"`
	Changes      datatypes.JSONMap `json:"changes"`
	IPAddress    string            `gorm:"size:64" json:"ip_address"`
	UserAgent    string            `gorm:"size:255" json:"user_agent"`
}
