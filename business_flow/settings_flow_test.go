package businessflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRegenerator struct {
	mu   sync.Mutex
	site services.SiteInfo
	runs int
}

func (r *recordingRegenerator) Regenerate(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	return nil
}

func (r *recordingRegenerator) UpdateSite(site services.SiteInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.site = site
}

func (r *recordingRegenerator) Site() services.SiteInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.site
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key   string
		value string
		ok    bool
	}{
		{models.SettingAIProvider, "anthropic", true},
		{models.SettingAIProvider, "", true},
		{models.SettingAIProvider, "cohere", false},
		{models.SettingAITemperature, "0.7", true},
		{models.SettingAITemperature, "2.5", false},
		{models.SettingAITemperature, "warm", false},
		{models.SettingReadingSpeedWPM, "250", true},
		{models.SettingReadingSpeedWPM, "10", false},
		{models.SettingSiteURL, "https://links.example.com", true},
		{models.SettingSiteURL, "links.example.com", false},
		{models.SettingSiteTitle, strings.Repeat("x", 2001), false},
		{"theme", "dark", false},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := businessflow.ValidateSetting(tt.key, tt.value)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			ve, ok := businessflow.AsValidationError(err)
			require.True(t, ok)
			assert.Equal(t, tt.key, ve.Field)
		})
	}
}

func TestAIConfigFromSettings(t *testing.T) {
	base := services.AIConfig{
		Provider:        services.ProviderOpenAI,
		Model:           "base-model",
		Temperature:     0.3,
		Timeout:         30 * time.Second,
		DefaultCategory: "Other",
		ReadingWPM:      200,
	}

	cfg := businessflow.AIConfigFromSettings(base, map[string]string{
		models.SettingAIProvider:      services.ProviderAnthropic,
		models.SettingAIModel:         "",
		models.SettingAITemperature:   "0.9",
		models.SettingReadingSpeedWPM: "not-a-number",
	})
	assert.Equal(t, services.ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "base-model", cfg.Model)
	assert.InDelta(t, 0.9, cfg.Temperature, 0.0001)
	assert.Equal(t, 200, cfg.ReadingWPM)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "Other", cfg.DefaultCategory)
}

func TestSettingsFlow(t *testing.T) {
	db := testutil.NewTestDB(t)
	log := quietLogger()
	analyzer := &recordingAnalyzer{}
	regen := &recordingRegenerator{}
	flow := businessflow.NewSettingsFlow(
		db.DB,
		repository.NewSettingRepository(db.DB),
		analyzer,
		regen,
		services.AIConfig{Provider: services.ProviderOpenAI, Model: "gpt-4o-mini", DefaultCategory: "Other"},
		businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log),
		log,
	)
	ctx := context.Background()
	const apiKey = "sk-live-0123456789abcdef"

	t.Run("SeedDefaultsKeepsExistingValues", func(t *testing.T) {
		require.NoError(t, testutil.NewTestFixtures(db).SetTestSetting(models.SettingSiteTitle, "My Links"))

		require.NoError(t, flow.SeedDefaults(ctx, map[string]string{
			models.SettingSiteTitle:       "Magpie",
			models.SettingSiteURL:         "https://links.example.com",
			models.SettingReadingSpeedWPM: "250",
		}))

		resp, err := flow.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "My Links", resp.Settings[models.SettingSiteTitle])
		assert.Equal(t, "250", resp.Settings[models.SettingReadingSpeedWPM])
		assert.Len(t, resp.Settings, len(models.KnownSettingKeys))

		assert.Equal(t, "My Links", regen.Site().Title)
		assert.Equal(t, "https://links.example.com", regen.Site().URL)
		assert.Equal(t, 250, analyzer.Config().ReadingWPM)
	})

	t.Run("UpdateMasksAPIKey", func(t *testing.T) {
		resp, err := flow.Update(ctx, &dto.UpdateSettingsRequest{Settings: map[string]string{
			models.SettingAIAPIKey:   apiKey,
			models.SettingAIProvider: services.ProviderOpenRouter,
		}}, adminActor(), testMetadata())
		require.NoError(t, err)

		masked := resp.Settings[models.SettingAIAPIKey]
		assert.NotEqual(t, apiKey, masked)
		assert.Contains(t, masked, "********")
		assert.Equal(t, apiKey, analyzer.Config().APIKey)
		assert.Equal(t, services.ProviderOpenRouter, analyzer.Config().Provider)
	})

	t.Run("MaskedKeyIsNotWrittenBack", func(t *testing.T) {
		current, err := flow.Get(ctx)
		require.NoError(t, err)

		_, err = flow.Update(ctx, &dto.UpdateSettingsRequest{Settings: map[string]string{
			models.SettingAIAPIKey: current.Settings[models.SettingAIAPIKey],
			models.SettingAIModel:  "gpt-4o",
		}}, adminActor(), testMetadata())
		require.NoError(t, err)

		stored, err := repository.NewSettingRepository(db.DB).ByKey(ctx, models.SettingAIAPIKey)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, apiKey, stored.Value)
		assert.Equal(t, "gpt-4o", analyzer.Config().Model)
	})

	t.Run("InvalidValueWritesNothing", func(t *testing.T) {
		_, err := flow.Update(ctx, &dto.UpdateSettingsRequest{Settings: map[string]string{
			models.SettingAIModel:       "should-not-stick",
			models.SettingAITemperature: "9",
		}}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsValidation(err))

		resp, err := flow.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", resp.Settings[models.SettingAIModel])
	})

	t.Run("EmptyRequest", func(t *testing.T) {
		_, err := flow.Update(ctx, &dto.UpdateSettingsRequest{}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("TestAI", func(t *testing.T) {
		resp, err := flow.TestAI(ctx)
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.Equal(t, services.ProviderOpenRouter, resp.Provider)
		assert.Equal(t, "gpt-4o", resp.Model)
	})
}
