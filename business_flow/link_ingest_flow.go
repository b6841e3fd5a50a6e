package businessflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// LinkIngestFlow turns a submitted URL into a stored link
type LinkIngestFlow interface {
	Ingest(ctx context.Context, req *dto.IngestLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.LinkDTO, error)
}

type LinkIngestFlowImpl struct {
	linkRepo     repository.LinkRepository
	categoryRepo repository.CategoryRepository
	enricher     *linkEnricher
	notifier     services.Notifier
	opLogger     OperationLogger
	log          logrus.FieldLogger
}

func NewLinkIngestFlow(
	linkRepo repository.LinkRepository,
	categoryRepo repository.CategoryRepository,
	extractor services.ExtractorService,
	analyzer services.AnalyzerService,
	notifier services.Notifier,
	opLogger OperationLogger,
	logger logrus.FieldLogger,
) LinkIngestFlow {
	log := logger.WithField("component", "ingest")
	return &LinkIngestFlowImpl{
		linkRepo:     linkRepo,
		categoryRepo: categoryRepo,
		enricher:     newLinkEnricher(categoryRepo, extractor, analyzer, log),
		notifier:     notifier,
		opLogger:     opLogger,
		log:          log,
	}
}

// Ingest validates, deduplicates, extracts, analyzes and stores the link.
// Extraction and analysis failures are recorded on the link and never fail the call.
func (f *LinkIngestFlowImpl) Ingest(ctx context.Context, req *dto.IngestLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.LinkDTO, error) {
	startedAt := time.Now()
	if req == nil {
		return nil, NewValidationError("url", "url is required")
	}

	rawURL := strings.TrimSpace(req.URL)
	u, err := services.ValidateURL(rawURL)
	if err != nil {
		ingestTotal.WithLabelValues(ingestOutcomeInvalid).Inc()
		return nil, NewBusinessError("INVALID_URL", "Invalid URL", ErrInvalidURL)
	}

	userTags := models.NormalizeTags(req.Tags)
	if len(userTags) > utils.MaxUserTags {
		ingestTotal.WithLabelValues(ingestOutcomeInvalid).Inc()
		return nil, NewValidationError("tags", "at most 10 tags are allowed")
	}

	existing, err := f.linkRepo.ByURL(ctx, rawURL)
	if err != nil {
		ingestTotal.WithLabelValues(ingestOutcomeError).Inc()
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to check for duplicates", err)
	}
	if existing != nil {
		ingestTotal.WithLabelValues(ingestOutcomeDuplicate).Inc()
		return nil, NewBusinessErrorf("DUPLICATE_URL", "URL already exists as link %d", ErrDuplicateURL, existing.ID)
	}

	link := &models.Link{
		URL:         rawURL,
		Domain:      services.DomainOf(u),
		ContentType: services.ClassifyContentType(u),
		Status:      models.LinkStatusPending,
	}
	f.enricher.enrich(ctx, link)

	if req.Category != nil {
		link.UserCategory = strings.TrimSpace(*req.Category)
	}
	if len(userTags) > 0 {
		link.UserTags = datatypes.NewJSONSlice(userTags)
	}

	if req.SkipConfirm {
		link.Publish(utils.UTCNow())
	} else {
		link.ClearFinal()
	}

	if err := f.linkRepo.Save(ctx, link); err != nil {
		if repository.IsUniqueViolation(err) {
			ingestTotal.WithLabelValues(ingestOutcomeDuplicate).Inc()
			return nil, NewBusinessError("DUPLICATE_URL", "URL already exists", ErrDuplicateURL)
		}
		ingestTotal.WithLabelValues(ingestOutcomeError).Inc()
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkCreate,
			ResourceType: models.ResourceLink,
			Status:       models.OperationStatusFailed,
			Details:      errorDetails(map[string]any{"url": rawURL}, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
		return nil, NewBusinessError("LINK_CREATE_FAILED", "Failed to store link", err)
	}

	outcome := ingestOutcomePending
	if link.Status == models.LinkStatusPublished {
		outcome = ingestOutcomePublished
		f.notifier.Notify("link_published")
	}
	ingestTotal.WithLabelValues(outcome).Inc()

	f.opLogger.Log(ctx, OperationEntry{
		Action:       models.OperationLinkCreate,
		ResourceType: models.ResourceLink,
		ResourceID:   strconv.FormatUint(uint64(link.ID), 10),
		Status:       models.OperationStatusSuccess,
		Details: map[string]any{
			"url":                link.URL,
			"status":             string(link.Status),
			"scraping_failed":    link.ScrapingFailed,
			"ai_analysis_failed": link.AIAnalysisFailed,
		},
		Actor:     actor,
		Metadata:  metadata,
		StartedAt: startedAt,
	})

	resp := ToLinkDTO(*link)
	return &resp, nil
}

// linkEnricher fills the scraped and AI layers of a link
type linkEnricher struct {
	categoryRepo repository.CategoryRepository
	extractor    services.ExtractorService
	analyzer     services.AnalyzerService
	log          logrus.FieldLogger
}

func newLinkEnricher(categoryRepo repository.CategoryRepository, extractor services.ExtractorService, analyzer services.AnalyzerService, log logrus.FieldLogger) *linkEnricher {
	return &linkEnricher{categoryRepo: categoryRepo, extractor: extractor, analyzer: analyzer, log: log}
}

func (e *linkEnricher) enrich(ctx context.Context, link *models.Link) {
	content, err := e.extractor.Extract(ctx, link.URL)
	if err != nil {
		e.log.WithError(err).WithField("url", link.URL).Warn("Extraction failed, storing minimal record")
		content = &services.ScrapedContent{
			URL:         link.URL,
			Domain:      link.Domain,
			ContentType: link.ContentType,
			Title:       link.Domain,
		}
		link.ScrapingFailed = true
	} else {
		link.ScrapingFailed = false
	}
	applyScraped(link, content)

	analysis := e.analyzer.Analyze(ctx, content, e.activeCategoryNames(ctx))
	applyAnalysis(link, analysis)
}

func (e *linkEnricher) activeCategoryNames(ctx context.Context) []string {
	if e.categoryRepo == nil {
		return nil
	}
	categories, err := e.categoryRepo.ListActive(ctx)
	if err != nil {
		e.log.WithError(err).Warn("Failed to load categories for analysis")
		return nil
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}

func applyScraped(link *models.Link, c *services.ScrapedContent) {
	link.Domain = utils.FirstNonEmpty(c.Domain, link.Domain)
	if c.ContentType != "" {
		link.ContentType = c.ContentType
	}
	link.Title = utils.TruncateRunes(utils.FirstNonEmpty(c.Title, link.Domain), 512)
	link.OriginalDescription = c.Description
	link.OriginalContent = c.Content
	link.Author = utils.TruncateRunes(c.Author, 255)
	link.PublishDate = c.PublishDate
	link.SiteName = utils.TruncateRunes(c.SiteName, 255)
	link.Language = utils.TruncateRunes(c.Language, 16)
	link.OriginalTags = datatypes.NewJSONSlice(models.NormalizeTags(c.Tags))
	link.WordCount = c.WordCount
}

func applyAnalysis(link *models.Link, a *services.AnalysisResult) {
	if a == nil {
		return
	}
	link.AISummary = a.Summary
	link.AICategory = a.Category
	link.AITags = datatypes.NewJSONSlice(a.Tags)
	link.AIReadingTime = a.ReadingTime
	link.AISentiment = a.Sentiment
	link.AILanguage = utils.TruncateRunes(a.Language, 16)
	link.AIAnalysisFailed = a.Failed
	link.AIError = a.Error
}
