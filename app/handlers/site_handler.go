package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type SiteHandlerInterface interface {
	ListOperationLogs(c fiber.Ctx) error
	Regenerate(c fiber.Ctx) error
}

// SiteHandler serves admin maintenance endpoints
type SiteHandler struct {
	baseHandler
	opLogFlow    businessflow.OperationLogFlow
	artifactFlow businessflow.ArtifactFlow
}

func NewSiteHandler(opLogFlow businessflow.OperationLogFlow, artifactFlow businessflow.ArtifactFlow, logger logrus.FieldLogger) SiteHandlerInterface {
	return &SiteHandler{
		baseHandler:  newBaseHandler(logger, "site_handler"),
		opLogFlow:    opLogFlow,
		artifactFlow: artifactFlow,
	}
}

// ListOperationLogs browses the audit trail
// @Summary List operation logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param action query string false "Action"
// @Param status query string false "success, failed or pending"
// @Param resource_type query string false "Resource type"
// @Param resource_id query string false "Resource ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.OperationLogListResponse}
// @Router /api/v1/admin/logs [get]
func (h *SiteHandler) ListOperationLogs(c fiber.Ctx) error {
	var req dto.ListOperationLogsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.opLogFlow.List(ctx, &req)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Operation logs retrieved", resp)
}

// Regenerate rebuilds the sitemap and feed now
// @Summary Regenerate static artifacts
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.RegenerateResponse}
// @Router /api/v1/admin/regenerate [post]
func (h *SiteHandler) Regenerate(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.artifactFlow.Regenerate(ctx, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Artifacts regenerated", resp)
}
