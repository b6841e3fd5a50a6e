package dto

type ListOperationLogsRequest struct {
	Action       string `query:"action" validate:"omitempty,max=64"`
	Status       string `query:"status" validate:"omitempty,oneof=success failed pending"`
	ResourceType string `query:"resource_type" validate:"omitempty,max=64"`
	ResourceID   string `query:"resource_id" validate:"omitempty,max=64"`
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,min=1,max=200"`
}

type OperationLogDTO struct {
	ID           uint    `json:"id"`
	Action       string  `json:"action" example:"link_create"`
	ResourceType string  `json:"resource_type" example:"link"`
	ResourceID   *string `json:"resource_id,omitempty" example:"1"`
	Status       string  `json:"status" example:"success"`
	Details      any     `json:"details,omitempty"`
	TokenID      *uint   `json:"token_id,omitempty"`
	UserID       *uint   `json:"user_id,omitempty"`
	IPAddress    *string `json:"ip_address,omitempty"`
	UserAgent    *string `json:"user_agent,omitempty"`
	RequestID    *string `json:"request_id,omitempty"`
	DurationMs   int64   `json:"duration_ms"`
	CreatedAt    string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type OperationLogListResponse struct {
	Items    []OperationLogDTO `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
