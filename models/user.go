package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model

	Email       string `gorm:"uniqueIndex;size:255" json:"email"`
	PhoneNumber string `gorm:"index;size:32" json:"phone_number"`
	APIKey      string `gorm:"uniqueIndex;size:64" json:"-"`
	IsAdmin     bool   `gorm:"default:false" json:"is_admin"`
	KYCVerified bool   `gorm:"default:false" json:"kyc_verified"`

	Devices      []UserDevice  `gorm:"foreignKey:UserID"`
	Transactions []Transaction `gorm:"foreignKey:UserID"`
}

type UserDevice struct {
	gorm.Model

	UserID          uint      `gorm:"index"`
	FingerprintHash string    `gorm:"index;size:64" json:"fingerprint_hash"`
	UserAgent       string    `gorm:"size:255" json:"user_agent"`
	IPAddress       string    `gorm:"size:64" json:"ip_address"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}
