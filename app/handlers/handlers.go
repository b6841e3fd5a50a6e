// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 30 * time.Second
	// ingestion fetches the page and waits for the model
	ingestRequestTimeout = 90 * time.Second
	batchRequestTimeout  = 10 * time.Minute
)

// baseHandler carries the response helpers every handler shares
type baseHandler struct {
	validator *validator.Validate
	log       logrus.FieldLogger
}

func newBaseHandler(logger logrus.FieldLogger, component string) baseHandler {
	return baseHandler{
		validator: NewValidator(),
		log:       logger.WithField("component", component),
	}
}

// NewValidator returns a validator that reports json or query names instead of Go field names
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// ErrorResponse standard JSON error
func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// SuccessResponse standard JSON success
func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and reports the first offending field
func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	err := h.validator.Struct(req)
	if err == nil {
		return true, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", nil)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", fiber.Map{
		"field":  verrs[0].Field(),
		"errors": messages,
	})
}

func (h *baseHandler) bindJSON(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR", fiber.Map{
			"field":  "body",
			"errors": []string{err.Error()},
		})
	}
	return h.validate(c, req)
}

func (h *baseHandler) bindQuery(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().Query(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "VALIDATION_ERROR", fiber.Map{
			"field":  "query",
			"errors": []string{err.Error()},
		})
	}
	return h.validate(c, req)
}

// idParam parses the :id route parameter
func (h *baseHandler) idParam(c fiber.Ctx) (uint, bool, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid id", "VALIDATION_ERROR", fiber.Map{"field": "id"})
	}
	return uint(id), true, nil
}

// HandleError maps business errors to HTTP status codes and stable error codes
func (h *baseHandler) HandleError(c fiber.Ctx, err error) error {
	message := "Internal server error"
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Message != "" {
		message = be.Message
	}

	code := businessflow.ErrorCodeOf(err)
	status := statusForCode(code)

	var details any
	switch code {
	case "VALIDATION_ERROR":
		if ve, ok := businessflow.AsValidationError(err); ok {
			details = fiber.Map{"field": ve.Field, "errors": []string{ve.Message}}
		}
	case "INTERNAL_ERROR":
		if errors.Is(err, businessflow.ErrAnalyzerNotConfigured) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, message, "AI_NOT_CONFIGURED", nil)
		}
		h.log.WithError(err).WithFields(logrus.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": requestid.FromContext(c),
		}).Error("Request failed")
		message = "Internal server error"
		details = fiber.Map{"request_id": requestid.FromContext(c)}
	}

	return h.ErrorResponse(c, status, message, code, details)
}

func statusForCode(code string) int {
	switch code {
	case "DUPLICATE_URL", "INVALID_STATUS", "CONFLICT", "CATEGORY_IN_USE", "TOKEN_REVOKED":
		return fiber.StatusConflict
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "ALREADY_DELETED":
		return fiber.StatusGone
	case "VALIDATION_ERROR", "INVALID_URL":
		return fiber.StatusBadRequest
	case "AUTH_INVALID":
		return fiber.StatusUnauthorized
	case "FORBIDDEN":
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// createRequestContext detaches the work from the client connection and
// carries request-scoped values for logging and auditing
func (h *baseHandler) createRequestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get(fiber.HeaderUserAgent))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, c.Path())
	if p := middleware.PrincipalFrom(c); p != nil {
		ctx = businessflow.WithPrincipal(ctx, p)
	}
	return ctx, cancel
}

func (h *baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	m := businessflow.NewClientMetadata(c.IP(), c.Get(fiber.HeaderUserAgent))
	m.SetRequestID(requestid.FromContext(c))
	return m
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "url":
		return err.Field() + " must be a valid URL"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "nefield":
		return err.Field() + " must differ from " + err.Param()
	case "alphanum":
		return err.Field() + " must contain only letters and digits"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
