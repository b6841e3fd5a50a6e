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

// Batch actions
const (
	BatchActionConfirm   = "confirm"
	BatchActionDelete    = "delete"
	BatchActionReanalyze = "reanalyze"
)

// LinkReviewFlow is the admin workflow over stored links
type LinkReviewFlow interface {
	Get(ctx context.Context, id uint) (*dto.LinkDTO, error)
	List(ctx context.Context, req *dto.AdminListLinksRequest) (*dto.LinkListResponse, error)
	Confirm(ctx context.Context, id uint, req *dto.ConfirmLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.LinkDTO, error)
	Edit(ctx context.Context, id uint, req *dto.UpdateLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.LinkDTO, error)
	Delete(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) error
	Reanalyze(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (*dto.LinkDTO, error)
	Batch(ctx context.Context, req *dto.BatchLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.BatchLinkResponse, error)
}

type LinkReviewFlowImpl struct {
	linkRepo repository.LinkRepository
	enricher *linkEnricher
	notifier services.Notifier
	opLogger OperationLogger
	log      logrus.FieldLogger
}

func NewLinkReviewFlow(
	linkRepo repository.LinkRepository,
	categoryRepo repository.CategoryRepository,
	extractor services.ExtractorService,
	analyzer services.AnalyzerService,
	notifier services.Notifier,
	opLogger OperationLogger,
	logger logrus.FieldLogger,
) LinkReviewFlow {
	log := logger.WithField("component", "review")
	return &LinkReviewFlowImpl{
		linkRepo: linkRepo,
		enricher: newLinkEnricher(categoryRepo, extractor, analyzer, log),
		notifier: notifier,
		opLogger: opLogger,
		log:      log,
	}
}

func (f *LinkReviewFlowImpl) load(ctx context.Context, id uint) (*models.Link, error) {
	link, err := f.linkRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
	}
	if link == nil {
		return nil, NewBusinessErrorf("NOT_FOUND", "Link %d not found", ErrLinkNotFound, id)
	}
	return link, nil
}

func (f *LinkReviewFlowImpl) Get(ctx context.Context, id uint) (*dto.LinkDTO, error) {
	link, err := f.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToLinkDTO(*link)
	return &resp, nil
}

func (f *LinkReviewFlowImpl) List(ctx context.Context, req *dto.AdminListLinksRequest) (*dto.LinkListResponse, error) {
	if req == nil {
		req = &dto.AdminListLinksRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	filter := models.LinkFilter{IncludeDeleted: req.IncludeDeleted}
	if req.Status != "" {
		status := models.LinkStatus(req.Status)
		if !status.Valid() {
			return nil, NewValidationError("status", "unknown status")
		}
		filter.Status = &status
	}
	if c := strings.TrimSpace(req.Category); c != "" {
		filter.Category = &c
	}
	filter.Tags = models.NormalizeTags(req.Tags)
	if s := strings.TrimSpace(req.Search); s != "" {
		filter.Search = &s
	}

	total, err := f.linkRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to count links", err)
	}
	rows, err := f.linkRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to list links", err)
	}

	items := make([]dto.LinkDTO, 0, len(rows))
	for _, l := range rows {
		items = append(items, ToLinkDTO(*l))
	}
	return &dto.LinkListResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// confirmInput is the normalized body of a confirmation
type confirmInput struct {
	title       string
	description string
	category    string
	tags        []string
	publish     bool
}

// applyConfirm moves a pending link to published or draft. It does not persist.
func applyConfirm(link *models.Link, in confirmInput, now time.Time) error {
	if !link.IsPending() {
		return NewBusinessErrorf("INVALID_STATUS", "Link is %s, only pending links can be confirmed", ErrInvalidStatus, link.Status)
	}
	if in.title != "" {
		link.Title = utils.TruncateRunes(in.title, 512)
	}
	if in.description != "" {
		link.UserDescription = in.description
	}
	if in.category != "" {
		link.UserCategory = in.category
	}
	if len(in.tags) > 0 {
		link.UserTags = datatypes.NewJSONSlice(in.tags)
	}
	if in.publish {
		link.Publish(now)
	} else {
		link.SaveAsDraft()
	}
	return nil
}

// Confirm publishes or drafts a pending link. Category and tags default to the AI values.
func (f *LinkReviewFlowImpl) Confirm(ctx context.Context, id uint, req *dto.ConfirmLinkRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.LinkDTO, err error) {
	startedAt := time.Now()
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkConfirm,
			ResourceType: models.ResourceLink,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	if req == nil || strings.TrimSpace(req.Description) == "" {
		return nil, NewValidationError("description", "description is required")
	}
	tags := models.NormalizeTags(req.Tags)
	if len(tags) > utils.MaxUserTags {
		return nil, NewValidationError("tags", "at most 10 tags are allowed")
	}

	link, err := f.load(ctx, id)
	if err != nil {
		return nil, err
	}

	in := confirmInput{
		title:       strings.TrimSpace(utils.Deref(req.Title)),
		description: strings.TrimSpace(req.Description),
		category:    strings.TrimSpace(utils.Deref(req.Category)),
		tags:        tags,
		publish:     req.Publish == nil || *req.Publish,
	}
	if err := applyConfirm(link, in, utils.UTCNow()); err != nil {
		return nil, err
	}

	if err := f.linkRepo.Update(ctx, link); err != nil {
		return nil, NewBusinessError("LINK_UPDATE_FAILED", "Failed to confirm link", err)
	}
	if link.Status == models.LinkStatusPublished {
		f.notifier.Notify("link_confirmed")
	}

	out := ToLinkDTO(*link)
	return &out, nil
}

// Edit patches any non-deleted link. A status in the patch drives publish or draft.
func (f *LinkReviewFlowImpl) Edit(ctx context.Context, id uint, req *dto.UpdateLinkRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.LinkDTO, err error) {
	startedAt := time.Now()
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkUpdate,
			ResourceType: models.ResourceLink,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	if req == nil {
		req = &dto.UpdateLinkRequest{}
	}
	var target models.LinkStatus
	if req.Status != nil {
		target = models.LinkStatus(strings.TrimSpace(*req.Status))
		if target != models.LinkStatusPublished && target != models.LinkStatusDraft {
			return nil, NewValidationError("status", "status must be published or draft")
		}
	}
	var tags []string
	if req.Tags != nil {
		tags = models.NormalizeTags(req.Tags)
		if len(tags) > utils.MaxUserTags {
			return nil, NewValidationError("tags", "at most 10 tags are allowed")
		}
	}

	link, err := f.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.IsDeleted() {
		return nil, NewBusinessErrorf("ALREADY_DELETED", "Link %d is deleted", ErrAlreadyDeleted, id)
	}
	wasPublished := link.Status == models.LinkStatusPublished

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		link.Title = utils.TruncateRunes(strings.TrimSpace(*req.Title), 512)
	}
	if req.Description != nil {
		link.UserDescription = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		link.UserCategory = strings.TrimSpace(*req.Category)
	}
	if req.Tags != nil {
		link.UserTags = datatypes.NewJSONSlice(tags)
	}

	switch {
	case target == models.LinkStatusPublished:
		link.Publish(utils.UTCNow())
	case target == models.LinkStatusDraft:
		link.SaveAsDraft()
	case link.Status == models.LinkStatusPublished || link.Status == models.LinkStatusDraft:
		link.ComputeFinal()
	}

	if err := f.linkRepo.Update(ctx, link); err != nil {
		return nil, NewBusinessError("LINK_UPDATE_FAILED", "Failed to update link", err)
	}
	if wasPublished || link.Status == models.LinkStatusPublished {
		f.notifier.Notify("link_updated")
	}

	out := ToLinkDTO(*link)
	return &out, nil
}

// Delete soft-deletes a link. Deleting twice reports AlreadyDeleted and changes nothing.
func (f *LinkReviewFlowImpl) Delete(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (err error) {
	startedAt := time.Now()
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkDelete,
			ResourceType: models.ResourceLink,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	link, err := f.load(ctx, id)
	if err != nil {
		return err
	}
	if err := f.deleteLink(ctx, link); err != nil {
		return err
	}
	f.notifier.Notify("link_deleted")
	return nil
}

func (f *LinkReviewFlowImpl) deleteLink(ctx context.Context, link *models.Link) error {
	if link.IsDeleted() {
		return NewBusinessErrorf("ALREADY_DELETED", "Link %d is already deleted", ErrAlreadyDeleted, link.ID)
	}
	link.MarkDeleted()
	if err := f.linkRepo.Update(ctx, link); err != nil {
		return NewBusinessError("LINK_DELETE_FAILED", "Failed to delete link", err)
	}
	return nil
}

// Reanalyze drops overrides and finals, returns the link to pending and re-runs extraction and analysis
func (f *LinkReviewFlowImpl) Reanalyze(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (resp *dto.LinkDTO, err error) {
	startedAt := time.Now()
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationLinkReanalyze,
			ResourceType: models.ResourceLink,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	link, err := f.load(ctx, id)
	if err != nil {
		return nil, err
	}
	wasPublished, err := f.reanalyzeLink(ctx, link)
	if err != nil {
		return nil, err
	}
	if wasPublished {
		f.notifier.Notify("link_reanalyzed")
	}

	out := ToLinkDTO(*link)
	return &out, nil
}

func (f *LinkReviewFlowImpl) reanalyzeLink(ctx context.Context, link *models.Link) (bool, error) {
	if link.IsDeleted() {
		return false, NewBusinessErrorf("ALREADY_DELETED", "Link %d is deleted", ErrAlreadyDeleted, link.ID)
	}
	wasPublished := link.Status == models.LinkStatusPublished
	link.ResetForReanalysis()
	f.enricher.enrich(ctx, link)
	if err := f.linkRepo.Update(ctx, link); err != nil {
		return wasPublished, NewBusinessError("LINK_UPDATE_FAILED", "Failed to store reanalysis", err)
	}
	return wasPublished, nil
}

// Batch runs one action over many ids sequentially. Each id succeeds or fails on its own;
// already-deleted links are skipped and unknown ids fail.
func (f *LinkReviewFlowImpl) Batch(ctx context.Context, req *dto.BatchLinkRequest, actor *Principal, metadata *ClientMetadata) (*dto.BatchLinkResponse, error) {
	startedAt := time.Now()
	if req == nil || len(req.IDs) == 0 {
		return nil, NewValidationError("ids", "at least one id is required")
	}
	switch req.Action {
	case BatchActionConfirm, BatchActionDelete, BatchActionReanalyze:
	default:
		return nil, NewValidationError("action", "action must be confirm, delete or reanalyze")
	}

	in := confirmInput{publish: true}
	if p := req.Params; p != nil {
		in.publish = p.Publish == nil || *p.Publish
		in.category = strings.TrimSpace(utils.Deref(p.Category))
		in.tags = models.NormalizeTags(p.Tags)
		if len(in.tags) > utils.MaxUserTags {
			return nil, NewValidationError("params.tags", "at most 10 tags are allowed")
		}
	}

	resp := &dto.BatchLinkResponse{Results: make([]dto.BatchItemResult, 0, len(req.IDs))}
	touchedPublic := false

	for _, id := range req.IDs {
		result := dto.BatchItemResult{ID: id}
		published, err := f.batchItem(ctx, id, req.Action, in)
		switch {
		case err == nil:
			result.Outcome = dto.BatchOutcomeProcessed
			resp.Processed++
			touchedPublic = touchedPublic || published
		case IsAlreadyDeleted(err):
			result.Outcome = dto.BatchOutcomeSkipped
			result.Code = ErrorCodeOf(err)
			result.Error = err.Error()
			resp.Skipped++
		default:
			result.Outcome = dto.BatchOutcomeFailed
			result.Code = ErrorCodeOf(err)
			result.Error = err.Error()
			resp.Failed++
		}
		resp.Results = append(resp.Results, result)
	}

	if touchedPublic {
		f.notifier.Notify("link_batch")
	}

	f.opLogger.Log(ctx, OperationEntry{
		Action:       models.OperationLinkBatch,
		ResourceType: models.ResourceLink,
		Status:       models.OperationStatusSuccess,
		Details: map[string]any{
			"action":    req.Action,
			"ids":       req.IDs,
			"processed": resp.Processed,
			"failed":    resp.Failed,
			"skipped":   resp.Skipped,
		},
		Actor:     actor,
		Metadata:  metadata,
		StartedAt: startedAt,
	})
	return resp, nil
}

// batchItem applies one action and reports whether the public set may have changed
func (f *LinkReviewFlowImpl) batchItem(ctx context.Context, id uint, action string, in confirmInput) (bool, error) {
	link, err := f.load(ctx, id)
	if err != nil {
		return false, err
	}
	if link.IsDeleted() {
		return false, NewBusinessErrorf("ALREADY_DELETED", "Link %d is already deleted", ErrAlreadyDeleted, id)
	}

	switch action {
	case BatchActionConfirm:
		if err := applyConfirm(link, in, utils.UTCNow()); err != nil {
			return false, err
		}
		if err := f.linkRepo.Update(ctx, link); err != nil {
			return false, NewBusinessError("LINK_UPDATE_FAILED", "Failed to confirm link", err)
		}
		return link.Status == models.LinkStatusPublished, nil
	case BatchActionDelete:
		wasPublished := link.Status == models.LinkStatusPublished
		return wasPublished, f.deleteLink(ctx, link)
	default:
		return f.reanalyzeLink(ctx, link)
	}
}
