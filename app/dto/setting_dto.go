package dto

// SettingsResponse holds every known setting; the API key is masked
type SettingsResponse struct {
	Settings map[string]string `json:"settings"`
}

type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

type TestAIResponse struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider" example:"openai"`
	Model    string `json:"model" example:"gpt-4o-mini"`
}
