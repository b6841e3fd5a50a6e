package models

import (
	"time"

	"gorm.io/datatypes"
)

// OperationStatus is the outcome recorded for an audited action
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "success"
	OperationStatusFailed  OperationStatus = "failed"
	OperationStatusPending OperationStatus = "pending"
)

// OperationLog is an append-only audit entry. TokenID and UserID are mutually exclusive.
type OperationLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Action       string          `gorm:"size:64;not null;index:idx_operation_logs_action" json:"action"`
	ResourceType string          `gorm:"size:64;not null;index:idx_operation_logs_resource" json:"resource_type"`
	ResourceID   *string         `gorm:"size:64;index:idx_operation_logs_resource" json:"resource_id,omitempty"`
	Status       OperationStatus `gorm:"size:20;not null;index:idx_operation_logs_status" json:"status"`
	Details      datatypes.JSON  `json:"details,omitempty"`
	TokenID      *uint           `gorm:"index:idx_operation_logs_token_id" json:"token_id,omitempty"`
	UserID       *uint           `gorm:"index:idx_operation_logs_user_id" json:"user_id,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:64" json:"request_id,omitempty"`
	DurationMs   int64           `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt    time.Time       `gorm:"index:idx_operation_logs_created_at" json:"created_at"`
}

func (OperationLog) TableName() string {
	return "operation_logs"
}

// Operation action constants
const (
	OperationLinkCreate       = "link_create"
	OperationLinkConfirm      = "link_confirm"
	OperationLinkUpdate       = "link_update"
	OperationLinkDelete       = "link_delete"
	OperationLinkBatch        = "link_batch"
	OperationLinkReanalyze    = "link_reanalyze"
	OperationLinkExport       = "link_export"
	OperationCategoryCreate   = "category_create"
	OperationCategoryUpdate   = "category_update"
	OperationCategoryDelete   = "category_delete"
	OperationCategoryReorder  = "category_reorder"
	OperationSettingsUpdate   = "settings_update"
	OperationTokenCreate      = "token_create"
	OperationTokenRevoke      = "token_revoke"
	OperationAdminCreate      = "admin_create"
	OperationAdminLogin       = "admin_login"
	OperationAdminLoginFailed = "admin_login_failed"
	OperationAdminLogout      = "admin_logout"
	OperationPasswordChanged  = "admin_password_changed"
	OperationRegenerate       = "static_regenerate"
)

// Resource type constants
const (
	ResourceLink     = "link"
	ResourceCategory = "category"
	ResourceSetting  = "setting"
	ResourceAPIToken = "api_token"
	ResourceAdmin    = "admin"
	ResourceSite     = "site"
)

// OperationLogFilter represents filter criteria for operation log queries
type OperationLogFilter struct {
	ID            *uint
	Action        *string
	ResourceType  *string
	ResourceID    *string
	Status        *OperationStatus
	TokenID       *uint
	UserID        *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (o *OperationLog) IsFailed() bool {
	return o.Status == OperationStatusFailed
}
