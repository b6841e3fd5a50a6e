package handlers

import (
	"net/http"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// PublicHandlerInterface is the anonymous read surface
type PublicHandlerInterface interface {
	ListLinks(c fiber.Ctx) error
	GetLink(c fiber.Ctx) error
	ListCategories(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
	Sitemap(c fiber.Ctx) error
	Feed(c fiber.Ctx) error
}

type PublicHandler struct {
	baseHandler
	linkFlow     businessflow.PublicLinkFlow
	categoryFlow businessflow.CategoryFlow
	artifactFlow businessflow.ArtifactFlow
}

func NewPublicHandler(linkFlow businessflow.PublicLinkFlow, categoryFlow businessflow.CategoryFlow, artifactFlow businessflow.ArtifactFlow, logger logrus.FieldLogger) PublicHandlerInterface {
	return &PublicHandler{
		baseHandler:  newBaseHandler(logger, "public_handler"),
		linkFlow:     linkFlow,
		categoryFlow: categoryFlow,
		artifactFlow: artifactFlow,
	}
}

// ListLinks lists published links
// @Summary List published links
// @Tags Public
// @Produce json
// @Param category query string false "Category"
// @Param tags query []string false "Up to 5 tags, all must match"
// @Param search query string false "Search in title and description"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.PublicLinkListResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/links [get]
func (h *PublicHandler) ListLinks(c fiber.Ctx) error {
	var req dto.PublicListLinksRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.linkFlow.List(ctx, &req)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Links retrieved", resp)
}

// GetLink returns one published link
// @Summary Get published link
// @Tags Public
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {object} dto.APIResponse{data=dto.PublicLinkDTO}
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Router /api/v1/links/{id} [get]
func (h *PublicHandler) GetLink(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	link, err := h.linkFlow.Get(ctx, id)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link retrieved", link)
}

// ListCategories lists active categories
// @Summary List categories
// @Tags Public
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CategoryListResponse}
// @Router /api/v1/categories [get]
func (h *PublicHandler) ListCategories(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.categoryFlow.List(ctx, false)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Categories retrieved", resp)
}

// Stats counts published links per category
// @Summary Link statistics
// @Tags Public
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.StatsResponse}
// @Router /api/v1/stats [get]
func (h *PublicHandler) Stats(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.linkFlow.Stats(ctx)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Stats retrieved", resp)
}

// Sitemap serves sitemap.xml
// @Summary Sitemap
// @Tags Public
// @Produce xml
// @Success 200 {string} string "sitemap"
// @Router /sitemap.xml [get]
func (h *PublicHandler) Sitemap(c fiber.Ctx) error {
	return h.serveArtifact(c, services.ArtifactSitemap)
}

// Feed serves the RSS feed
// @Summary RSS feed
// @Tags Public
// @Produce xml
// @Success 200 {string} string "rss"
// @Router /feed.xml [get]
func (h *PublicHandler) Feed(c fiber.Ctx) error {
	return h.serveArtifact(c, services.ArtifactFeed)
}

func (h *PublicHandler) serveArtifact(c fiber.Ctx, name string) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	a, err := h.artifactFlow.Serve(ctx, name)
	if err != nil {
		return h.HandleError(c, err)
	}
	c.Set(fiber.HeaderContentType, a.ContentType)
	c.Set(fiber.HeaderLastModified, a.GeneratedAt.UTC().Format(http.TimeFormat))
	return c.Status(fiber.StatusOK).Send(a.Body)
}
