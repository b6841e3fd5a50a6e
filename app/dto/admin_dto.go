// Package dto holds request and response shapes of the HTTP API
package dto

type AdminDTO struct {
	ID          uint    `json:"id" example:"1"`
	UUID        string  `json:"uuid" example:"f47ac10b-58cc-4372-a567-0e02b2c3d479"`
	Username    string  `json:"username" example:"admin"`
	Role        string  `json:"role" example:"admin"`
	Status      string  `json:"status" example:"active"`
	CreatedAt   string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	LastLoginAt *string `json:"last_login_at,omitempty" example:"2024-01-15T10:30:00Z"`
}

type AdminSessionDTO struct {
	SessionToken         string `json:"session_token" example:"session_9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
	SessionExpiresAt     string `json:"session_expires_at" example:"2024-01-22T10:30:00Z"`
	AccessToken          string `json:"access_token" example:"jwt"`
	AccessTokenExpiresAt string `json:"access_token_expires_at" example:"2024-01-16T10:30:00Z"`
	TokenType            string `json:"token_type" example:"Bearer"`
}

type AdminCaptchaInitResponse struct {
	Enabled           bool   `json:"enabled"`
	ChallengeID       string `json:"challenge_id,omitempty"`
	MasterImageBase64 string `json:"master_image_base64,omitempty"`
	ThumbImageBase64  string `json:"thumb_image_base64,omitempty"`
}

type AdminLoginRequest struct {
	Username    string  `json:"username" validate:"required,min=3,max=255"`
	Password    string  `json:"password" validate:"required,max=128"`
	ChallengeID string  `json:"challenge_id,omitempty" validate:"omitempty,max=64"`
	UserAngle   float64 `json:"user_angle,omitempty"`
}

type AdminLoginResponse struct {
	Admin   AdminDTO        `json:"admin"`
	Session AdminSessionDTO `json:"session"`
}

type CreateAdminRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

// AuthVerifyResponse describes the caller behind a verified credential
type AuthVerifyResponse struct {
	Kind     string `json:"kind" example:"api_token"`
	TokenID  *uint  `json:"token_id,omitempty"`
	UserID   *uint  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}
