package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

var defaultExportStatuses = []models.LinkStatus{
	models.LinkStatusPending,
	models.LinkStatusPublished,
	models.LinkStatusDraft,
}

var exportHeader = []string{
	"id", "url", "domain", "title", "content_type", "status",
	"description", "category", "tags",
	"ai_summary", "ai_category", "ai_tags", "ai_reading_time", "ai_analysis_failed",
	"user_description", "user_category", "user_tags",
	"scraping_failed", "created_at", "published_at", "updated_at",
}

// LinkExportFlow renders links into an XLSX workbook
type LinkExportFlow interface {
	// Export returns the file name and workbook bytes. Each status gets its own sheet.
	Export(ctx context.Context, req *dto.ExportLinksRequest, actor *Principal, metadata *ClientMetadata) (string, []byte, error)
}

type LinkExportFlowImpl struct {
	linkRepo repository.LinkRepository
	opLogger OperationLogger
	log      logrus.FieldLogger
}

func NewLinkExportFlow(linkRepo repository.LinkRepository, opLogger OperationLogger, logger logrus.FieldLogger) LinkExportFlow {
	return &LinkExportFlowImpl{
		linkRepo: linkRepo,
		opLogger: opLogger,
		log:      logger.WithField("component", "export"),
	}
}

func (f *LinkExportFlowImpl) Export(ctx context.Context, req *dto.ExportLinksRequest, actor *Principal, metadata *ClientMetadata) (filename string, data []byte, err error) {
	statuses, err := exportStatuses(req)
	if err != nil {
		return "", nil, err
	}

	counts := make(map[string]int, len(statuses))
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkExport,
			ResourceType: models.ResourceLink,
			Status:       outcomeOf(err),
			Details:      errorDetails(map[string]any{"rows": counts}, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	headerStyle, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to build Excel styles", ErrExportFailed)
	}

	for i, status := range statuses {
		sheet := string(status)
		if i == 0 {
			if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to name sheet", ErrExportFailed)
			}
		} else if _, err := xl.NewSheet(sheet); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to add sheet", ErrExportFailed)
		}

		header := exportHeader
		_ = xl.SetSheetRow(sheet, "A1", &header)
		lastCol, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
		_ = xl.SetCellStyle(sheet, "A1", lastCol, headerStyle)

		st := status
		rows, err := f.linkRepo.ByFilter(ctx, models.LinkFilter{Status: &st}, "id ASC", 0, 0)
		if err != nil {
			return "", nil, NewBusinessError("LINK_LIST_FAILED", "Failed to fetch links for export", err)
		}
		for ri, l := range rows {
			record := exportRow(l)
			cell, _ := excelize.CoordinatesToCellName(1, ri+2)
			if err := xl.SetSheetRow(sheet, cell, &record); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", ErrExportFailed)
			}
		}
		counts[sheet] = len(rows)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", ErrExportFailed)
	}

	filename = fmt.Sprintf("links_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func exportStatuses(req *dto.ExportLinksRequest) ([]models.LinkStatus, error) {
	if req == nil || len(req.Statuses) == 0 {
		return defaultExportStatuses, nil
	}
	seen := make(map[models.LinkStatus]struct{}, len(req.Statuses))
	out := make([]models.LinkStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		s := models.LinkStatus(strings.ToLower(strings.TrimSpace(raw)))
		if !s.Valid() {
			return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func exportRow(l *models.Link) []any {
	published := ""
	if l.PublishedAt != nil {
		published = formatTime(*l.PublishedAt)
	}
	return []any{
		l.ID,
		l.URL,
		l.Domain,
		l.Title,
		string(l.ContentType),
		string(l.Status),
		l.EffectiveDescription(),
		l.EffectiveCategory(),
		strings.Join(l.EffectiveTags(), ", "),
		l.AISummary,
		l.AICategory,
		strings.Join(l.AITags, ", "),
		l.AIReadingTime,
		strconv.FormatBool(l.AIAnalysisFailed),
		l.UserDescription,
		l.UserCategory,
		strings.Join(l.UserTags, ", "),
		strconv.FormatBool(l.ScrapingFailed),
		formatTime(l.CreatedAt),
		published,
		formatTime(l.UpdatedAt),
	}
}
