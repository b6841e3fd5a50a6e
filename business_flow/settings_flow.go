package businessflow

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsFlow reads and writes runtime settings and applies them to live services
type SettingsFlow interface {
	Get(ctx context.Context) (*dto.SettingsResponse, error)
	Update(ctx context.Context, req *dto.UpdateSettingsRequest, actor *Principal, metadata *ClientMetadata) (*dto.SettingsResponse, error)
	TestAI(ctx context.Context) (*dto.TestAIResponse, error)
	// SeedDefaults inserts missing keys and then applies the stored values
	SeedDefaults(ctx context.Context, defaults map[string]string) error
	// Apply pushes the stored settings to the analyzer and the regenerator
	Apply(ctx context.Context) error
}

type SettingsFlowImpl struct {
	db          *gorm.DB
	settingRepo repository.SettingRepository
	analyzer    services.AnalyzerService
	regenerator services.RegeneratorService
	baseAI      services.AIConfig
	opLogger    OperationLogger
	log         logrus.FieldLogger
}

// NewSettingsFlow creates the flow. baseAI supplies values no setting overrides, such as the timeout.
func NewSettingsFlow(
	db *gorm.DB,
	settingRepo repository.SettingRepository,
	analyzer services.AnalyzerService,
	regenerator services.RegeneratorService,
	baseAI services.AIConfig,
	opLogger OperationLogger,
	logger logrus.FieldLogger,
) SettingsFlow {
	return &SettingsFlowImpl{
		db:          db,
		settingRepo: settingRepo,
		analyzer:    analyzer,
		regenerator: regenerator,
		baseAI:      baseAI,
		opLogger:    opLogger,
		log:         logger.WithField("component", "settings"),
	}
}

func (f *SettingsFlowImpl) Get(ctx context.Context) (*dto.SettingsResponse, error) {
	values, err := f.settingRepo.All(ctx)
	if err != nil {
		return nil, NewBusinessError("SETTINGS_READ_FAILED", "Failed to read settings", err)
	}
	return &dto.SettingsResponse{Settings: maskSettings(values)}, nil
}

// Update validates every key before writing any. A masked API key value is ignored.
func (f *SettingsFlowImpl) Update(ctx context.Context, req *dto.UpdateSettingsRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.SettingsResponse, err error) {
	var changed []string
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationSettingsUpdate,
			ResourceType: models.ResourceSetting,
			Status:       outcomeOf(err),
			Details:      errorDetails(map[string]any{"keys": changed}, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	if req == nil || len(req.Settings) == 0 {
		return nil, NewValidationError("settings", "at least one setting is required")
	}

	current, err := f.settingRepo.All(ctx)
	if err != nil {
		return nil, NewBusinessError("SETTINGS_READ_FAILED", "Failed to read settings", err)
	}

	updates := make(map[string]string, len(req.Settings))
	for key, value := range req.Settings {
		value = strings.TrimSpace(value)
		if err := ValidateSetting(key, value); err != nil {
			return nil, err
		}
		if key == models.SettingAIAPIKey && value != "" && value == utils.MaskSecret(current[key]) {
			continue
		}
		updates[key] = value
		changed = append(changed, key)
	}
	sort.Strings(changed)

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		for _, key := range changed {
			if err := f.settingRepo.Upsert(txCtx, key, updates[key]); err != nil {
				return NewBusinessError("SETTINGS_UPDATE_FAILED", "Failed to update settings", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := f.Apply(ctx); err != nil {
		f.log.WithError(err).Warn("Failed to apply updated settings")
	}
	return f.Get(ctx)
}

func (f *SettingsFlowImpl) TestAI(ctx context.Context) (*dto.TestAIResponse, error) {
	if f.analyzer == nil {
		return nil, NewBusinessError("AI_NOT_CONFIGURED", "AI analyzer is not configured", ErrAnalyzerNotConfigured)
	}
	cfg := f.analyzer.Config()
	return &dto.TestAIResponse{
		OK:       f.analyzer.TestConnection(ctx),
		Provider: cfg.Provider,
		Model:    cfg.Model,
	}, nil
}

func (f *SettingsFlowImpl) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	if err := f.settingRepo.SeedDefaults(ctx, defaults); err != nil {
		return NewBusinessError("SETTINGS_SEED_FAILED", "Failed to seed settings", err)
	}
	return f.Apply(ctx)
}

func (f *SettingsFlowImpl) Apply(ctx context.Context) error {
	values, err := f.settingRepo.All(ctx)
	if err != nil {
		return NewBusinessError("SETTINGS_READ_FAILED", "Failed to read settings", err)
	}
	if f.analyzer != nil {
		f.analyzer.UpdateConfig(AIConfigFromSettings(f.baseAI, values))
	}
	if f.regenerator != nil {
		f.regenerator.UpdateSite(SiteInfoFromSettings(values))
	}
	f.log.WithField("keys", len(values)).Debug("Settings applied")
	return nil
}

// ValidateSetting checks a single key/value pair
func ValidateSetting(key, value string) error {
	switch key {
	case models.SettingAIProvider:
		switch value {
		case "", services.ProviderOpenAI, services.ProviderOpenRouter, services.ProviderAnthropic:
			return nil
		}
		return NewValidationError(key, "provider must be openai, openrouter or anthropic")
	case models.SettingAITemperature:
		if value == "" {
			return nil
		}
		t, err := strconv.ParseFloat(value, 32)
		if err != nil || t < 0 || t > 2 {
			return NewValidationError(key, "temperature must be a number between 0 and 2")
		}
		return nil
	case models.SettingReadingSpeedWPM:
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 50 || n > 2000 {
			return NewValidationError(key, "reading speed must be between 50 and 2000 words per minute")
		}
		return nil
	case models.SettingAIBaseURL, models.SettingSiteURL:
		if value == "" {
			return nil
		}
		if _, err := services.ValidateURL(value); err != nil {
			return NewValidationError(key, "must be an http or https URL")
		}
		return nil
	case models.SettingAIAPIKey, models.SettingAIModel, models.SettingDefaultCategory,
		models.SettingSiteTitle, models.SettingSiteDescription:
		if len(value) > 2000 {
			return NewValidationError(key, "value is too long")
		}
		return nil
	default:
		return NewValidationError(key, "unknown setting")
	}
}

// AIConfigFromSettings overlays stored settings on base
func AIConfigFromSettings(base services.AIConfig, values map[string]string) services.AIConfig {
	cfg := base
	if v, ok := values[models.SettingAIProvider]; ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := values[models.SettingAIAPIKey]; ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := values[models.SettingAIBaseURL]; ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := values[models.SettingAIModel]; ok && v != "" {
		cfg.Model = v
	}
	if v, err := strconv.ParseFloat(values[models.SettingAITemperature], 32); err == nil {
		cfg.Temperature = float32(v)
	}
	if v, ok := values[models.SettingDefaultCategory]; ok && v != "" {
		cfg.DefaultCategory = v
	}
	if v, err := strconv.Atoi(values[models.SettingReadingSpeedWPM]); err == nil && v > 0 {
		cfg.ReadingWPM = v
	}
	return cfg
}

func SiteInfoFromSettings(values map[string]string) services.SiteInfo {
	return services.SiteInfo{
		URL:         values[models.SettingSiteURL],
		Title:       values[models.SettingSiteTitle],
		Description: values[models.SettingSiteDescription],
	}
}

// maskSettings returns every known key, with the API key masked
func maskSettings(values map[string]string) map[string]string {
	out := make(map[string]string, len(models.KnownSettingKeys))
	for _, key := range models.KnownSettingKeys {
		out[key] = values[key]
	}
	if key := out[models.SettingAIAPIKey]; key != "" {
		out[models.SettingAIAPIKey] = utils.MaskSecret(key)
	}
	return out
}
