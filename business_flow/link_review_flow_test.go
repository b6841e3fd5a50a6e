package businessflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/amirphl/magpie/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkReviewFlow_Confirm(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()

	t.Run("FallsBackToAICategory", func(t *testing.T) {
		h.notifier.Reset()
		link, err := h.fixtures.CreateTestLink("https://example.com/c", testutil.WithAIFields("AI summary", "tech", "go", "testing"))
		require.NoError(t, err)

		resp, err := h.review.Confirm(ctx, link.ID, &dto.ConfirmLinkRequest{Description: "My own words"}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, string(models.LinkStatusPublished), resp.Status)
		assert.Empty(t, resp.UserCategory)
		require.NotNil(t, resp.FinalCategory)
		assert.Equal(t, "tech", *resp.FinalCategory)
		require.NotNil(t, resp.FinalDescription)
		assert.Equal(t, "My own words", *resp.FinalDescription)
		assert.Equal(t, []string{"go", "testing"}, resp.FinalTags)
		assert.NotNil(t, resp.PublishedAt)
		assert.Equal(t, []string{"link_confirmed"}, h.notifier.Reasons())

		stored := h.reload(t, link.ID)
		assert.Equal(t, models.LinkStatusPublished, stored.Status)
		assert.Equal(t, "My own words", stored.UserDescription)
	})

	t.Run("OverridesWin", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/c2", testutil.WithAIFields("AI summary", "tech", "go"))
		require.NoError(t, err)

		resp, err := h.review.Confirm(ctx, link.ID, &dto.ConfirmLinkRequest{
			Title:       utils.ToPtr("Better title"),
			Description: "Curated",
			Category:    utils.ToPtr("design"),
			Tags:        []string{"figma", "Figma", "ui"},
		}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, "Better title", resp.Title)
		assert.Equal(t, "design", *resp.FinalCategory)
		assert.Equal(t, []string{"figma", "ui"}, resp.FinalTags)
	})

	t.Run("SaveAsDraft", func(t *testing.T) {
		h.notifier.Reset()
		link, err := h.fixtures.CreateTestLink("https://example.com/draft", testutil.WithAIFields("AI summary", "tech"))
		require.NoError(t, err)

		resp, err := h.review.Confirm(ctx, link.ID, &dto.ConfirmLinkRequest{Description: "Later", Publish: utils.ToPtr(false)}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, string(models.LinkStatusDraft), resp.Status)
		assert.Nil(t, resp.PublishedAt)
		require.NotNil(t, resp.FinalCategory)
		assert.Equal(t, "tech", *resp.FinalCategory)
		assert.Empty(t, h.notifier.Reasons())

		_, err = h.public.Get(ctx, link.ID)
		assert.True(t, businessflow.IsNotFound(err))
	})

	t.Run("OnlyPending", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/already", testutil.WithAIFields("AI summary", "tech"), testutil.Published(time.Now().UTC()))
		require.NoError(t, err)

		_, err = h.review.Confirm(ctx, link.ID, &dto.ConfirmLinkRequest{Description: "again"}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidStatus(err))
		assert.Equal(t, "INVALID_STATUS", businessflow.ErrorCodeOf(err))
	})

	t.Run("DescriptionRequired", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/nodesc")
		require.NoError(t, err)

		_, err = h.review.Confirm(ctx, link.ID, &dto.ConfirmLinkRequest{Description: "   "}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsValidation(err))
		assert.Equal(t, models.LinkStatusPending, h.reload(t, link.ID).Status)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := h.review.Confirm(ctx, 999999, &dto.ConfirmLinkRequest{Description: "x"}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsNotFound(err))
	})
}

func TestLinkReviewFlow_EditAndDelete(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()

	t.Run("EditPublishedRecomputesFinal", func(t *testing.T) {
		h.notifier.Reset()
		link, err := h.fixtures.CreateTestLink("https://example.com/e1",
			testutil.WithAIFields("AI summary", "tech", "go"),
			testutil.Published(time.Now().UTC()))
		require.NoError(t, err)

		resp, err := h.review.Edit(ctx, link.ID, &dto.UpdateLinkRequest{Category: utils.ToPtr("design")}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, string(models.LinkStatusPublished), resp.Status)
		assert.Equal(t, "design", *resp.FinalCategory)
		assert.Equal(t, "AI summary", *resp.FinalDescription)
		assert.Equal(t, []string{"link_updated"}, h.notifier.Reasons())
	})

	t.Run("EditToDraftUnpublishes", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/e2",
			testutil.WithAIFields("AI summary", "tech"),
			testutil.Published(time.Now().UTC()))
		require.NoError(t, err)

		resp, err := h.review.Edit(ctx, link.ID, &dto.UpdateLinkRequest{Status: utils.ToPtr("draft")}, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Equal(t, string(models.LinkStatusDraft), resp.Status)
		assert.Nil(t, resp.PublishedAt)
	})

	t.Run("EditRejectsUnknownStatus", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/e3")
		require.NoError(t, err)

		_, err = h.review.Edit(ctx, link.ID, &dto.UpdateLinkRequest{Status: utils.ToPtr("deleted")}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		link, err := h.fixtures.CreateTestLink("https://example.com/d1", testutil.WithAIFields("AI summary", "tech"), testutil.Published(time.Now().UTC()))
		require.NoError(t, err)

		require.NoError(t, h.review.Delete(ctx, link.ID, adminActor(), testMetadata()))
		assert.Equal(t, models.LinkStatusDeleted, h.reload(t, link.ID).Status)

		err = h.review.Delete(ctx, link.ID, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsAlreadyDeleted(err))
		assert.Equal(t, models.LinkStatusDeleted, h.reload(t, link.ID).Status)

		_, err = h.public.Get(ctx, link.ID)
		assert.True(t, businessflow.IsNotFound(err))

		_, err = h.review.Edit(ctx, link.ID, &dto.UpdateLinkRequest{Title: utils.ToPtr("x")}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsAlreadyDeleted(err))
	})

	t.Run("ListHidesDeletedByDefault", func(t *testing.T) {
		resp, err := h.review.List(ctx, &dto.AdminListLinksRequest{})
		require.NoError(t, err)
		for _, item := range resp.Items {
			assert.NotEqual(t, string(models.LinkStatusDeleted), item.Status)
		}

		deleted, err := h.review.List(ctx, &dto.AdminListLinksRequest{Status: "deleted"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted.Total)

		_, err = h.review.List(ctx, &dto.AdminListLinksRequest{Status: "archived"})
		assert.True(t, businessflow.IsValidation(err))
	})
}

func TestLinkReviewFlow_Reanalyze(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()

	link, err := h.fixtures.CreateTestLink("https://example.com/r1",
		testutil.WithAIFields("stale summary", "design", "old"),
		testutil.WithUserFields("user text", "design", "mine"),
		testutil.Published(time.Now().UTC()))
	require.NoError(t, err)
	h.notifier.Reset()

	resp, err := h.review.Reanalyze(ctx, link.ID, adminActor(), testMetadata())
	require.NoError(t, err)

	assert.Equal(t, string(models.LinkStatusPending), resp.Status)
	assert.Empty(t, resp.UserDescription)
	assert.Empty(t, resp.UserCategory)
	assert.Empty(t, resp.UserTags)
	assert.Nil(t, resp.FinalCategory)
	assert.Nil(t, resp.PublishedAt)
	assert.Equal(t, "tech", resp.AICategory)
	assert.Equal(t, "A practical guide to testing Go code.", resp.AISummary)
	assert.Equal(t, []string{"link_reanalyzed"}, h.notifier.Reasons())

	require.NoError(t, h.review.Delete(ctx, link.ID, adminActor(), testMetadata()))
	_, err = h.review.Reanalyze(ctx, link.ID, adminActor(), testMetadata())
	assert.True(t, businessflow.IsAlreadyDeleted(err))
}

func TestLinkReviewFlow_Batch(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()

	t.Run("DeleteMixedIDs", func(t *testing.T) {
		pending, err := h.fixtures.CreateTestLink("https://example.com/b1")
		require.NoError(t, err)
		gone, err := h.fixtures.CreateTestLink("https://example.com/b2", testutil.WithStatus(models.LinkStatusDeleted))
		require.NoError(t, err)
		missing := gone.ID + 1000

		resp, err := h.review.Batch(ctx, &dto.BatchLinkRequest{
			IDs:    []uint{pending.ID, gone.ID, missing},
			Action: businessflow.BatchActionDelete,
		}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, 1, resp.Processed)
		assert.Equal(t, 1, resp.Skipped)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Results, 3)

		assert.Equal(t, pending.ID, resp.Results[0].ID)
		assert.Equal(t, dto.BatchOutcomeProcessed, resp.Results[0].Outcome)
		assert.Equal(t, gone.ID, resp.Results[1].ID)
		assert.Equal(t, dto.BatchOutcomeSkipped, resp.Results[1].Outcome)
		assert.Equal(t, "ALREADY_DELETED", resp.Results[1].Code)
		assert.Equal(t, missing, resp.Results[2].ID)
		assert.Equal(t, dto.BatchOutcomeFailed, resp.Results[2].Outcome)
		assert.Equal(t, "NOT_FOUND", resp.Results[2].Code)

		assert.Equal(t, models.LinkStatusDeleted, h.reload(t, pending.ID).Status)
	})

	t.Run("ConfirmWithParams", func(t *testing.T) {
		h.notifier.Reset()
		a, err := h.fixtures.CreateTestLink("https://example.com/b3", testutil.WithAIFields("one", "tech"))
		require.NoError(t, err)
		b, err := h.fixtures.CreateTestLink("https://example.com/b4", testutil.WithAIFields("two", "tech"), testutil.Published(time.Now().UTC()))
		require.NoError(t, err)

		resp, err := h.review.Batch(ctx, &dto.BatchLinkRequest{
			IDs:    []uint{a.ID, b.ID},
			Action: businessflow.BatchActionConfirm,
			Params: &dto.BatchLinkParams{Category: utils.ToPtr("design")},
		}, adminActor(), testMetadata())
		require.NoError(t, err)

		assert.Equal(t, 1, resp.Processed)
		assert.Equal(t, 1, resp.Failed)
		assert.Equal(t, "INVALID_STATUS", resp.Results[1].Code)

		stored := h.reload(t, a.ID)
		assert.Equal(t, models.LinkStatusPublished, stored.Status)
		require.NotNil(t, stored.FinalCategory)
		assert.Equal(t, "design", *stored.FinalCategory)
		assert.Equal(t, []string{"link_batch"}, h.notifier.Reasons())
	})

	t.Run("RejectsUnknownAction", func(t *testing.T) {
		_, err := h.review.Batch(ctx, &dto.BatchLinkRequest{IDs: []uint{1}, Action: "archive"}, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsValidation(err))

		_, err = h.review.Batch(ctx, &dto.BatchLinkRequest{Action: businessflow.BatchActionDelete}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsValidation(err))
	})
}
