package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type APITokenHandlerInterface interface {
	List(c fiber.Ctx) error
	Create(c fiber.Ctx) error
	Revoke(c fiber.Ctx) error
}

type APITokenHandler struct {
	baseHandler
	flow businessflow.APITokenFlow
}

func NewAPITokenHandler(flow businessflow.APITokenFlow, logger logrus.FieldLogger) APITokenHandlerInterface {
	return &APITokenHandler{
		baseHandler: newBaseHandler(logger, "api_token_handler"),
		flow:        flow,
	}
}

// List returns every API token with masked values
// @Summary List API tokens
// @Tags Admin Tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.APITokenListResponse}
// @Router /api/v1/admin/tokens [get]
func (h *APITokenHandler) List(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.List(ctx)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Tokens retrieved", resp)
}

// Create issues a token; the full value appears only in this response
// @Summary Create API token
// @Tags Admin Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateAPITokenRequest true "Token name"
// @Success 201 {object} dto.APIResponse{data=dto.CreateAPITokenResponse}
// @Router /api/v1/admin/tokens [post]
func (h *APITokenHandler) Create(c fiber.Ctx) error {
	var req dto.CreateAPITokenRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Create(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Token created", resp)
}

// Revoke disables a token permanently
// @Summary Revoke API token
// @Tags Admin Tokens
// @Produce json
// @Security BearerAuth
// @Param id path int true "Token ID"
// @Success 200 {object} dto.APIResponse{data=dto.APITokenDTO}
// @Failure 404 {object} dto.APIResponse "Token not found"
// @Failure 409 {object} dto.APIResponse "Token already revoked"
// @Router /api/v1/admin/tokens/{id} [delete]
func (h *APITokenHandler) Revoke(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Revoke(ctx, id, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Token revoked", resp)
}
