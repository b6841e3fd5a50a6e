// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"context"
	"time"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// PrincipalLocalsKey is the fiber Locals key holding the authenticated *businessflow.Principal
const PrincipalLocalsKey = "principal"

const authTimeout = 5 * time.Second

// AuthMiddleware resolves bearer credentials into a Principal
type AuthMiddleware struct {
	authFlow businessflow.AuthFlow
	log      logrus.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authFlow businessflow.AuthFlow, logger logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		authFlow: authFlow,
		log:      logger.WithField("component", "auth_middleware"),
	}
}

// TokenOrAdmin accepts an API token, an admin session token or an admin JWT
func (m *AuthMiddleware) TokenOrAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()

		principal, err := m.authFlow.AuthenticateTokenOrAdmin(ctx, credentialHeader(c), c.IP())
		if err != nil {
			return m.reject(c, err)
		}
		c.Locals(PrincipalLocalsKey, principal)
		return c.Next()
	}
}

// Admin accepts an admin session token or an admin JWT. API tokens are refused with 403.
func (m *AuthMiddleware) Admin() fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()

		principal, err := m.authFlow.AuthenticateAdmin(ctx, credentialHeader(c))
		if err != nil {
			return m.reject(c, err)
		}
		c.Locals(PrincipalLocalsKey, principal)
		return c.Next()
	}
}

func (m *AuthMiddleware) reject(c fiber.Ctx, err error) error {
	if businessflow.IsForbidden(err) {
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
			Success: false,
			Message: "Access denied",
			Error:   dto.ErrorDetail{Code: "FORBIDDEN"},
		})
	}
	if !businessflow.IsAuthFailure(err) {
		m.log.WithError(err).WithField("path", c.Path()).Error("Authentication error")
	}
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: "Authentication required",
		Error:   dto.ErrorDetail{Code: "AUTH_INVALID"},
	})
}

// credentialHeader prefers Authorization and falls back to X-API-Key
func credentialHeader(c fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		return h
	}
	return c.Get("X-API-Key")
}

// PrincipalFrom returns the caller stored by the auth middleware, or nil
func PrincipalFrom(c fiber.Ctx) *businessflow.Principal {
	p, _ := c.Locals(PrincipalLocalsKey).(*businessflow.Principal)
	return p
}
