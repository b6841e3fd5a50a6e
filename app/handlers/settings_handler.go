package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type SettingsHandlerInterface interface {
	Get(c fiber.Ctx) error
	Update(c fiber.Ctx) error
	TestAI(c fiber.Ctx) error
}

type SettingsHandler struct {
	baseHandler
	flow businessflow.SettingsFlow
}

func NewSettingsHandler(flow businessflow.SettingsFlow, logger logrus.FieldLogger) SettingsHandlerInterface {
	return &SettingsHandler{
		baseHandler: newBaseHandler(logger, "settings_handler"),
		flow:        flow,
	}
}

// Get returns every setting with the AI key masked
// @Summary Get settings
// @Tags Admin Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.SettingsResponse}
// @Router /api/v1/admin/settings [get]
func (h *SettingsHandler) Get(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Get(ctx)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Settings retrieved", resp)
}

// Update writes settings and reconfigures the analyzer
// @Summary Update settings
// @Tags Admin Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.UpdateSettingsRequest true "Settings to change"
// @Success 200 {object} dto.APIResponse{data=dto.SettingsResponse}
// @Failure 400 {object} dto.APIResponse "Unknown key or invalid value"
// @Router /api/v1/admin/settings [put]
func (h *SettingsHandler) Update(c fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Update(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Settings updated", resp)
}

// TestAI sends a probe completion with the current configuration
// @Summary Test AI connection
// @Tags Admin Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.TestAIResponse}
// @Router /api/v1/admin/settings/test-ai [post]
func (h *SettingsHandler) TestAI(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, ingestRequestTimeout)
	defer cancel()

	resp, err := h.flow.TestAI(ctx)
	if err != nil {
		return h.HandleError(c, err)
	}
	message := "AI connection failed"
	if resp.OK {
		message = "AI connection succeeded"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, resp)
}
