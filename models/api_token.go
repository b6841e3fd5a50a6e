package models

import (
	"time"
)

// APITokenStatus is monotonic: active tokens can be revoked, never the reverse.
type APITokenStatus string

const (
	APITokenStatusActive  APITokenStatus = "active"
	APITokenStatusRevoked APITokenStatus = "revoked"
)

func (s APITokenStatus) Valid() bool {
	return s == APITokenStatusActive || s == APITokenStatusRevoked
}

// APIToken is a bearer credential for the browser extension and API clients.
type APIToken struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Token      string         `gorm:"size:68;not null;uniqueIndex:uk_api_tokens_token" json:"-"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	Status     APITokenStatus `gorm:"size:20;not null;default:'active';index:idx_api_tokens_status" json:"status"`
	UsageCount int64          `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	LastUsedIP *string        `gorm:"size:64" json:"last_used_ip,omitempty"`
	RevokedAt  *time.Time     `json:"revoked_at,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_api_tokens_created_at" json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (APIToken) TableName() string {
	return "api_tokens"
}

func (t *APIToken) IsRevoked() bool {
	return t.Status == APITokenStatusRevoked
}

// APITokenFilter represents filter criteria for api token queries
type APITokenFilter struct {
	ID     *uint
	Token  *string
	Name   *string
	Status *APITokenStatus
}
