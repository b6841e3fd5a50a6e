package dto

type CreateAPITokenRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255" example:"browser extension"`
}

// APITokenDTO never carries the full token value except in CreateAPITokenResponse
type APITokenDTO struct {
	ID         uint    `json:"id" example:"1"`
	Name       string  `json:"name" example:"browser extension"`
	Token      string  `json:"token" example:"mgp_1a2b3c4d********9f0e"`
	Status     string  `json:"status" example:"active"`
	UsageCount int64   `json:"usage_count" example:"42"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
	LastUsedIP *string `json:"last_used_ip,omitempty"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
	CreatedAt  string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type CreateAPITokenResponse struct {
	APITokenDTO
	Message string `json:"message"`
}

type APITokenListResponse struct {
	Items []APITokenDTO `json:"items"`
}
