package models

import "time"

// Setting keys
const (
	SettingAIProvider      = "ai_provider"
	SettingAIAPIKey        = "ai_api_key"
	SettingAIBaseURL       = "ai_base_url"
	SettingAIModel         = "ai_model"
	SettingAITemperature   = "ai_temperature"
	SettingDefaultCategory = "default_category"
	SettingReadingSpeedWPM = "reading_speed_wpm"
	SettingSiteURL         = "site_url"
	SettingSiteTitle       = "site_title"
	SettingSiteDescription = "site_description"
)

// KnownSettingKeys lists every key the settings endpoints accept
var KnownSettingKeys = []string{
	SettingAIProvider,
	SettingAIAPIKey,
	SettingAIBaseURL,
	SettingAIModel,
	SettingAITemperature,
	SettingDefaultCategory,
	SettingReadingSpeedWPM,
	SettingSiteURL,
	SettingSiteTitle,
	SettingSiteDescription,
}

// Setting is a runtime-configurable key/value pair
type Setting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"column:setting_key;size:100;not null;uniqueIndex:uk_settings_key" json:"key"`
	Value       string    `gorm:"type:text;not null;default:''" json:"value"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

// SettingFilter represents filter criteria for setting queries
type SettingFilter struct {
	Key  *string
	Keys []string
}

// AllModels lists every persisted entity for AutoMigrate
func AllModels() []any {
	return []any{
		&Link{},
		&APIToken{},
		&Admin{},
		&OperationLog{},
		&Category{},
		&Setting{},
	}
}
