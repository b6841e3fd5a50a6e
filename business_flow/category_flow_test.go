package businessflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/amirphl/magpie/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAnalyzer captures what the flows push to the analyzer
type recordingAnalyzer struct {
	services.AnalyzerService

	mu         sync.Mutex
	categories []string
	cfg        services.AIConfig
}

func (a *recordingAnalyzer) UpdateCategories(categories []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.categories = append([]string(nil), categories...)
}

func (a *recordingAnalyzer) UpdateConfig(cfg services.AIConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

func (a *recordingAnalyzer) Config() services.AIConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *recordingAnalyzer) TestConnection(context.Context) bool { return true }

func (a *recordingAnalyzer) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.categories...)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tech", "tech"},
		{"  Go & Rust  ", "go-rust"},
		{"UI/UX -- Design", "ui-ux-design"},
		{"Release 2024", "release-2024"},
		{"برنامه نویسی", "برنامه-نویسی"},
		{"!!!", "category"},
		{"", "category"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, businessflow.Slugify(tt.in))
		})
	}
}

func TestCategoryFlow(t *testing.T) {
	db := testutil.NewTestDB(t)
	fixtures := testutil.NewTestFixtures(db)
	seeded, err := fixtures.CreateTestCategories("tech", "design", "Other")
	require.NoError(t, err)
	require.NoError(t, fixtures.SetTestSetting(models.SettingDefaultCategory, "Other"))

	log := quietLogger()
	analyzer := &recordingAnalyzer{}
	opLogs := businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log)
	flow := businessflow.NewCategoryFlow(
		db.DB,
		repository.NewCategoryRepository(db.DB),
		repository.NewLinkRepository(db.DB),
		repository.NewSettingRepository(db.DB),
		analyzer,
		opLogs,
		log,
	)
	ctx := context.Background()
	tech, design, other := seeded[0], seeded[1], seeded[2]

	t.Run("ListCountsPublishedLinks", func(t *testing.T) {
		_, err := fixtures.CreateTestLink("https://example.com/c1", testutil.WithAIFields("one", "tech", "go"), testutil.Published(utils.UTCNow()))
		require.NoError(t, err)
		_, err = fixtures.CreateTestLink("https://example.com/c2", testutil.WithAIFields("two", "tech", "go"))
		require.NoError(t, err)

		resp, err := flow.List(ctx, false)
		require.NoError(t, err)
		require.Len(t, resp.Items, 3)
		assert.Equal(t, "tech", resp.Items[0].Name)
		assert.Equal(t, int64(1), resp.Items[0].LinkCount)
		assert.Equal(t, int64(0), resp.Items[1].LinkCount)
		assert.Empty(t, resp.Icons)

		resp, err = flow.List(ctx, true)
		require.NoError(t, err)
		assert.Contains(t, resp.Icons, string(models.CategoryIconFolder))
	})

	t.Run("CreateDerivesUniqueSlug", func(t *testing.T) {
		first, err := flow.Create(ctx, &dto.CreateCategoryRequest{Name: "Go Rust"}, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Equal(t, "go-rust", first.Slug)
		assert.Equal(t, string(models.CategoryIconFolder), first.Icon)
		assert.Equal(t, 3, first.DisplayOrder)
		assert.True(t, first.IsActive)

		second, err := flow.Create(ctx, &dto.CreateCategoryRequest{Name: "Go & Rust", Icon: "code"}, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Equal(t, "go-rust-2", second.Slug)
		assert.Equal(t, "code", second.Icon)

		assert.Contains(t, analyzer.Categories(), "Go & Rust")
	})

	t.Run("CreateRejectsDuplicatesAndBadInput", func(t *testing.T) {
		_, err := flow.Create(ctx, &dto.CreateCategoryRequest{Name: "tech"}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsCategoryExists(err))

		_, err = flow.Create(ctx, &dto.CreateCategoryRequest{Name: "   "}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsValidation(err))

		_, err = flow.Create(ctx, &dto.CreateCategoryRequest{Name: "Music", Icon: "guitar"}, adminActor(), testMetadata())
		require.Error(t, err)
		ve, ok := businessflow.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, "icon", ve.Field)
	})

	t.Run("UpdateRenamesAndKeepsOwnSlug", func(t *testing.T) {
		resp, err := flow.Update(ctx, design.ID, &dto.UpdateCategoryRequest{
			Name:        utils.ToPtr("Design Systems"),
			Description: utils.ToPtr("  tokens and components "),
		}, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Equal(t, "Design Systems", resp.Name)
		assert.Equal(t, "design-systems", resp.Slug)
		assert.Equal(t, "tokens and components", resp.Description)

		_, err = flow.Update(ctx, design.ID, &dto.UpdateCategoryRequest{Name: utils.ToPtr("tech")}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsCategoryExists(err))

		_, err = flow.Update(ctx, 9999, &dto.UpdateCategoryRequest{Name: utils.ToPtr("x")}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsNotFound(err))
	})

	t.Run("DefaultCategoryCannotBeRemoved", func(t *testing.T) {
		err := flow.Delete(ctx, other.ID, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsCategoryInUse(err))

		_, err = flow.Update(ctx, other.ID, &dto.UpdateCategoryRequest{IsActive: utils.ToPtr(false)}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsCategoryInUse(err))
	})

	t.Run("Reorder", func(t *testing.T) {
		resp, err := flow.Reorder(ctx, &dto.ReorderCategoriesRequest{IDs: []uint{other.ID, tech.ID}}, adminActor(), testMetadata())
		require.NoError(t, err)

		orders := map[uint]int{}
		for _, c := range resp.Items {
			orders[c.ID] = c.DisplayOrder
		}
		assert.Equal(t, 0, orders[other.ID])
		assert.Equal(t, 1, orders[tech.ID])

		_, err = flow.Reorder(ctx, &dto.ReorderCategoriesRequest{IDs: []uint{tech.ID, tech.ID}}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("ReorderUnknownIDRollsBack", func(t *testing.T) {
		_, err := flow.Reorder(ctx, &dto.ReorderCategoriesRequest{IDs: []uint{tech.ID, 9999}}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsNotFound(err))

		reloaded, err := repository.NewCategoryRepository(db.DB).ByID(ctx, tech.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.DisplayOrder)
	})

	t.Run("DeleteKeepsLinkCategories", func(t *testing.T) {
		require.NoError(t, flow.Delete(ctx, tech.ID, adminActor(), testMetadata()))
		assert.NotContains(t, analyzer.Categories(), "tech")

		link, err := repository.NewLinkRepository(db.DB).ByURL(ctx, "https://example.com/c1")
		require.NoError(t, err)
		require.NotNil(t, link)
		require.NotNil(t, link.FinalCategory)
		assert.Equal(t, "tech", *link.FinalCategory)

		err = flow.Delete(ctx, tech.ID, adminActor(), testMetadata())
		assert.True(t, businessflow.IsNotFound(err))
	})
}

func TestCategoryFlow_LastActiveCategory(t *testing.T) {
	db := testutil.NewTestDB(t)
	fixtures := testutil.NewTestFixtures(db)
	seeded, err := fixtures.CreateTestCategories("only", "spare")
	require.NoError(t, err)

	log := quietLogger()
	flow := businessflow.NewCategoryFlow(
		db.DB,
		repository.NewCategoryRepository(db.DB),
		repository.NewLinkRepository(db.DB),
		repository.NewSettingRepository(db.DB),
		nil,
		businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log),
		log,
	)
	ctx := context.Background()

	_, err = flow.Update(ctx, seeded[1].ID, &dto.UpdateCategoryRequest{IsActive: utils.ToPtr(false)}, adminActor(), testMetadata())
	require.NoError(t, err)

	err = flow.Delete(ctx, seeded[0].ID, adminActor(), testMetadata())
	require.Error(t, err)
	assert.True(t, businessflow.IsCategoryInUse(err))

	// inactive categories can always go
	require.NoError(t, flow.Delete(ctx, seeded[1].ID, adminActor(), testMetadata()))

	resp, err := flow.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "only", resp.Items[0].Name)
}
