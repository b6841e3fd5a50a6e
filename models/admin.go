package models

import (
	"time"

	"github.com/google/uuid"
)

const AdminRole = "admin"

// AdminStatus represents the account state of the admin user
type AdminStatus string

const (
	AdminStatusActive    AdminStatus = "active"
	AdminStatusSuspended AdminStatus = "suspended"
)

// Admin is the single privileged account. Only one row is ever created.
type Admin struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:uk_admins_uuid" json:"uuid"`
	Username     string      `gorm:"size:255;not null;uniqueIndex:uk_admins_username" json:"username"`
	PasswordHash string      `gorm:"size:255;not null" json:"-"`
	PasswordSalt string      `gorm:"size:64;not null" json:"-"`
	Role         string      `gorm:"size:20;not null;default:'admin'" json:"role"`
	Status       AdminStatus `gorm:"size:20;not null;default:'active';index:idx_admins_status" json:"status"`

	SessionToken     *string    `gorm:"size:72;uniqueIndex:uk_admins_session_token" json:"-"`
	SessionExpiresAt *time.Time `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (Admin) TableName() string {
	return "admins"
}

func (a *Admin) IsActive() bool {
	return a.Status == AdminStatusActive
}

// SessionExpired reports whether the stored session is past its expiry at now
func (a *Admin) SessionExpired(now time.Time) bool {
	return a.SessionExpiresAt == nil || !now.Before(*a.SessionExpiresAt)
}

// AdminFilter represents filter criteria for admin queries
type AdminFilter struct {
	ID           *uint
	UUID         *uuid.UUID
	Username     *string
	SessionToken *string
	Status       *AdminStatus
}
