package businessflow

import (
	"context"
	"sort"
	"strings"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
)

// PublicLinkFlow is the anonymous read path over published links
type PublicLinkFlow interface {
	List(ctx context.Context, req *dto.PublicListLinksRequest) (*dto.PublicLinkListResponse, error)
	Get(ctx context.Context, id uint) (*dto.PublicLinkDTO, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

type PublicLinkFlowImpl struct {
	linkRepo repository.LinkRepository
	log      logrus.FieldLogger
}

func NewPublicLinkFlow(linkRepo repository.LinkRepository, logger logrus.FieldLogger) PublicLinkFlow {
	return &PublicLinkFlowImpl{
		linkRepo: linkRepo,
		log:      logger.WithField("component", "public_links"),
	}
}

func (f *PublicLinkFlowImpl) List(ctx context.Context, req *dto.PublicListLinksRequest) (*dto.PublicLinkListResponse, error) {
	if req == nil {
		req = &dto.PublicListLinksRequest{}
	}
	tags := models.NormalizeTags(req.Tags)
	if len(tags) > utils.MaxPublicQueryTags {
		return nil, NewValidationError("tags", "at most 5 tags can be queried")
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	status := models.LinkStatusPublished
	filter := models.LinkFilter{Status: &status, Tags: tags}
	if c := strings.TrimSpace(req.Category); c != "" {
		filter.Category = &c
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		filter.Search = &s
	}

	total, err := f.linkRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to count links", err)
	}
	rows, err := f.linkRepo.ByFilter(ctx, filter, "published_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to list links", err)
	}

	items := make([]dto.PublicLinkDTO, 0, len(rows))
	for _, l := range rows {
		items = append(items, ToPublicLinkDTO(*l))
	}
	return &dto.PublicLinkListResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns a published link. Any other status reads as not found.
func (f *PublicLinkFlowImpl) Get(ctx context.Context, id uint) (*dto.PublicLinkDTO, error) {
	link, err := f.linkRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
	}
	if link == nil || link.Status != models.LinkStatusPublished {
		return nil, NewBusinessError("NOT_FOUND", "Link not found", ErrLinkNotFound)
	}
	out := ToPublicLinkDTO(*link)
	return &out, nil
}

// Stats counts published links per final category, largest first
func (f *PublicLinkFlowImpl) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	counts, err := f.linkRepo.CountByCategory(ctx, models.LinkStatusPublished)
	if err != nil {
		return nil, NewBusinessError("STATS_FAILED", "Failed to compute stats", err)
	}

	resp := &dto.StatsResponse{Categories: make([]dto.CategoryCountDTO, 0, len(counts))}
	for category, n := range counts {
		resp.Total += n
		resp.Categories = append(resp.Categories, dto.CategoryCountDTO{Category: category, Count: n})
	}
	sort.Slice(resp.Categories, func(i, j int) bool {
		if resp.Categories[i].Count != resp.Categories[j].Count {
			return resp.Categories[i].Count > resp.Categories[j].Count
		}
		return resp.Categories[i].Category < resp.Categories[j].Category
	})
	return resp, nil
}
