package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// LinkHandlerInterface covers link ingestion and the admin review workflow
type LinkHandlerInterface interface {
	Ingest(c fiber.Ctx) error
	AdminList(c fiber.Ctx) error
	AdminGet(c fiber.Ctx) error
	AdminUpdate(c fiber.Ctx) error
	AdminDelete(c fiber.Ctx) error
	Confirm(c fiber.Ctx) error
	Reanalyze(c fiber.Ctx) error
	Batch(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

type LinkHandler struct {
	baseHandler
	ingestFlow businessflow.LinkIngestFlow
	reviewFlow businessflow.LinkReviewFlow
	exportFlow businessflow.LinkExportFlow
}

func NewLinkHandler(ingestFlow businessflow.LinkIngestFlow, reviewFlow businessflow.LinkReviewFlow, exportFlow businessflow.LinkExportFlow, logger logrus.FieldLogger) LinkHandlerInterface {
	return &LinkHandler{
		baseHandler: newBaseHandler(logger, "link_handler"),
		ingestFlow:  ingestFlow,
		reviewFlow:  reviewFlow,
		exportFlow:  exportFlow,
	}
}

// Ingest submits a URL to the ingestion pipeline
// @Summary Submit a link
// @Description Fetch, extract and analyze a URL, then store it as pending or published
// @Tags Links
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.IngestLinkRequest true "Link to ingest"
// @Success 201 {object} dto.APIResponse{data=dto.LinkDTO} "Link stored"
// @Failure 400 {object} dto.APIResponse "Invalid URL or validation error"
// @Failure 401 {object} dto.APIResponse "Authentication required"
// @Failure 409 {object} dto.APIResponse "URL already exists"
// @Router /api/v1/links [post]
func (h *LinkHandler) Ingest(c fiber.Ctx) error {
	var req dto.IngestLinkRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, ingestRequestTimeout)
	defer cancel()

	link, err := h.ingestFlow.Ingest(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Link stored", link)
}

// AdminList lists links for review
// @Summary List links (admin)
// @Tags Admin Links
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, published, draft or deleted"
// @Param include_deleted query bool false "Include deleted links"
// @Param category query string false "Final category"
// @Param tags query []string false "Final tags"
// @Param search query string false "Search in title, description and URL"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.LinkListResponse}
// @Router /api/v1/admin/links [get]
func (h *LinkHandler) AdminList(c fiber.Ctx) error {
	var req dto.AdminListLinksRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.reviewFlow.List(ctx, &req)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Links retrieved", resp)
}

// AdminGet returns one link with every content layer
// @Summary Get link (admin)
// @Tags Admin Links
// @Produce json
// @Security BearerAuth
// @Param id path int true "Link ID"
// @Success 200 {object} dto.APIResponse{data=dto.LinkDTO}
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Router /api/v1/admin/links/{id} [get]
func (h *LinkHandler) AdminGet(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	link, err := h.reviewFlow.Get(ctx, id)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link retrieved", link)
}

// AdminUpdate edits a link
// @Summary Update link
// @Tags Admin Links
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Link ID"
// @Param request body dto.UpdateLinkRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.LinkDTO}
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 410 {object} dto.APIResponse "Link deleted"
// @Router /api/v1/admin/links/{id} [put]
func (h *LinkHandler) AdminUpdate(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}
	var req dto.UpdateLinkRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	link, err := h.reviewFlow.Edit(ctx, id, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link updated", link)
}

// AdminDelete soft-deletes a link
// @Summary Delete link
// @Tags Admin Links
// @Produce json
// @Security BearerAuth
// @Param id path int true "Link ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 410 {object} dto.APIResponse "Link already deleted"
// @Router /api/v1/admin/links/{id} [delete]
func (h *LinkHandler) AdminDelete(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	if err := h.reviewFlow.Delete(ctx, id, middleware.PrincipalFrom(c), h.metadata(c)); err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link deleted", fiber.Map{"id": id})
}

// Confirm reviews a pending link and publishes it or saves it as draft
// @Summary Confirm link
// @Tags Admin Links
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Link ID"
// @Param request body dto.ConfirmLinkRequest true "Review data"
// @Success 200 {object} dto.APIResponse{data=dto.LinkDTO}
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 409 {object} dto.APIResponse "Link is not pending"
// @Router /api/v1/admin/links/{id}/confirm [post]
func (h *LinkHandler) Confirm(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}
	var req dto.ConfirmLinkRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	link, err := h.reviewFlow.Confirm(ctx, id, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link confirmed", link)
}

// Reanalyze re-runs extraction and analysis and returns the link to pending
// @Summary Re-analyze link
// @Tags Admin Links
// @Produce json
// @Security BearerAuth
// @Param id path int true "Link ID"
// @Success 200 {object} dto.APIResponse{data=dto.LinkDTO}
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 410 {object} dto.APIResponse "Link deleted"
// @Router /api/v1/admin/links/{id}/reanalyze [post]
func (h *LinkHandler) Reanalyze(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, ingestRequestTimeout)
	defer cancel()

	link, err := h.reviewFlow.Reanalyze(ctx, id, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Link re-analyzed", link)
}

// Batch applies one action to many links
// @Summary Batch link action
// @Description Items run sequentially; one failure never stops the rest
// @Tags Admin Links
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.BatchLinkRequest true "Batch request"
// @Success 200 {object} dto.APIResponse{data=dto.BatchLinkResponse}
// @Router /api/v1/admin/links/batch [post]
func (h *LinkHandler) Batch(c fiber.Ctx) error {
	var req dto.BatchLinkRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, batchRequestTimeout)
	defer cancel()

	resp, err := h.reviewFlow.Batch(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Batch processed", resp)
}

// Export downloads links as an XLSX workbook with one sheet per status
// @Summary Export links
// @Tags Admin Links
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param status query []string false "Statuses to export"
// @Success 200 {file} file
// @Router /api/v1/admin/links/export [get]
func (h *LinkHandler) Export(c fiber.Ctx) error {
	var req dto.ExportLinksRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	filename, data, err := h.exportFlow.Export(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}

	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Status(fiber.StatusOK).Send(data)
}
