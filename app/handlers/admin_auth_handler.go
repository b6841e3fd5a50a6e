package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// AuthHandlerInterface defines the contract for credential and admin session handlers
type AuthHandlerInterface interface {
	Verify(c fiber.Ctx) error
	InitCaptcha(c fiber.Ctx) error
	Login(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
	ChangePassword(c fiber.Ctx) error
}

// AuthHandler implements AuthHandlerInterface
type AuthHandler struct {
	baseHandler
	flow businessflow.AdminAuthFlow
}

func NewAuthHandler(flow businessflow.AdminAuthFlow, logger logrus.FieldLogger) AuthHandlerInterface {
	return &AuthHandler{
		baseHandler: newBaseHandler(logger, "auth_handler"),
		flow:        flow,
	}
}

// Verify reports who the presented credential belongs to
// @Summary Verify credential
// @Description Used by the browser extension to check its API token
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.AuthVerifyResponse} "Credential valid"
// @Failure 401 {object} dto.APIResponse "Authentication required"
// @Router /api/v1/auth/verify [get]
func (h *AuthHandler) Verify(c fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTH_INVALID", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Credential valid", dto.AuthVerifyResponse{
		Kind:     string(p.Kind),
		TokenID:  p.TokenID,
		UserID:   p.UserID,
		Username: p.Username,
		Role:     p.Role,
	})
}

// InitCaptcha starts the admin login by returning a rotate captcha challenge
// @Summary Admin captcha init
// @Description Returns base64 images and a challenge ID, or enabled=false when the captcha is off
// @Tags Admin Authentication
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.AdminCaptchaInitResponse} "Captcha initialized"
// @Failure 500 {object} dto.APIResponse "Failed to initialize captcha"
// @Router /api/v1/admin/captcha/init [post]
func (h *AuthHandler) InitCaptcha(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.InitCaptcha(ctx)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Captcha initialized", resp)
}

// Login verifies the captcha and credentials and opens a session
// @Summary Admin login
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Admin login data"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid credentials or captcha"
// @Router /api/v1/admin/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Login(ctx, &req, h.metadata(c))
	if err != nil {
		if businessflow.IsAuthFailure(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid username, password or captcha", "AUTH_INVALID", nil)
		}
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", resp)
}

// Logout clears the admin session
// @Summary Admin logout
// @Tags Admin Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "Logged out"
// @Router /api/v1/admin/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	if err := h.flow.Logout(ctx, middleware.PrincipalFrom(c), h.metadata(c)); err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

// ChangePassword rotates the admin password and ends the current session
// @Summary Change admin password
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePasswordRequest true "Passwords"
// @Success 200 {object} dto.APIResponse "Password changed"
// @Failure 401 {object} dto.APIResponse "Current password is incorrect"
// @Router /api/v1/admin/password [put]
func (h *AuthHandler) ChangePassword(c fiber.Ctx) error {
	var req dto.ChangePasswordRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	if err := h.flow.ChangePassword(ctx, middleware.PrincipalFrom(c), &req, h.metadata(c)); err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Password changed", nil)
}
