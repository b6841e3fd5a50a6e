package businessflow_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLinkExportAndOperationLogs(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()

	_, err := h.ingest.Ingest(ctx, &dto.IngestLinkRequest{URL: "https://example.com/published", SkipConfirm: true}, adminActor(), testMetadata())
	require.NoError(t, err)
	_, err = h.ingest.Ingest(ctx, &dto.IngestLinkRequest{URL: "https://example.com/pending"}, adminActor(), testMetadata())
	require.NoError(t, err)
	gone, err := h.ingest.Ingest(ctx, &dto.IngestLinkRequest{URL: "https://example.com/gone"}, adminActor(), testMetadata())
	require.NoError(t, err)
	require.NoError(t, h.review.Delete(ctx, gone.ID, adminActor(), testMetadata()))

	export := businessflow.NewLinkExportFlow(h.linkRepo, h.opLogs, quietLogger())

	t.Run("DefaultStatuses", func(t *testing.T) {
		name, data, err := export.Export(ctx, nil, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Regexp(t, `^links_\d{8}_\d{6}\.xlsx$`, name)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer xl.Close()

		assert.Equal(t, []string{"pending", "published", "draft"}, xl.GetSheetList())

		rows, err := xl.GetRows("published")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "id", rows[0][0])
		assert.Equal(t, "https://example.com/published", rows[1][1])
		assert.Equal(t, "tech", rows[1][7])

		rows, err = xl.GetRows("draft")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("SelectedStatuses", func(t *testing.T) {
		_, data, err := export.Export(ctx, &dto.ExportLinksRequest{Statuses: []string{"Deleted", "deleted"}}, adminActor(), testMetadata())
		require.NoError(t, err)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer xl.Close()

		assert.Equal(t, []string{"deleted"}, xl.GetSheetList())
		rows, err := xl.GetRows("deleted")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "https://example.com/gone", rows[1][1])
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		_, _, err := export.Export(ctx, &dto.ExportLinksRequest{Statuses: []string{"archived"}}, adminActor(), testMetadata())
		require.Error(t, err)
		ve, ok := businessflow.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, "status", ve.Field)
	})

	t.Run("OperationLogFilters", func(t *testing.T) {
		created, err := h.opLogs.List(ctx, &dto.ListOperationLogsRequest{Action: models.OperationLinkCreate})
		require.NoError(t, err)
		assert.EqualValues(t, 3, created.Total)
		for _, item := range created.Items {
			assert.Equal(t, models.ResourceLink, item.ResourceType)
			assert.Equal(t, "success", item.Status)
			require.NotNil(t, item.IPAddress)
			assert.Equal(t, "127.0.0.1", *item.IPAddress)
		}

		deleted, err := h.opLogs.List(ctx, &dto.ListOperationLogsRequest{Action: models.OperationLinkDelete})
		require.NoError(t, err)
		require.Len(t, deleted.Items, 1)
		require.NotNil(t, deleted.Items[0].ResourceID)

		exports, err := h.opLogs.List(ctx, &dto.ListOperationLogsRequest{Action: models.OperationLinkExport, Status: "success"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, exports.Total)

		failed, err := h.opLogs.List(ctx, &dto.ListOperationLogsRequest{Status: "failed"})
		require.NoError(t, err)
		assert.Zero(t, failed.Total)

		paged, err := h.opLogs.List(ctx, &dto.ListOperationLogsRequest{PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, paged.Items, 2)
		assert.Equal(t, 1, paged.Page)
		assert.Greater(t, paged.Total, int64(2))
	})
}
