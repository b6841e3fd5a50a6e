// Package businessflow contains the use cases behind the HTTP API and the CLI
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Link errors
	ErrDuplicateURL   = errors.New("url already exists")
	ErrLinkNotFound   = errors.New("link not found")
	ErrInvalidStatus  = errors.New("invalid status for this operation")
	ErrAlreadyDeleted = errors.New("link already deleted")
	ErrInvalidURL     = errors.New("invalid url")
	ErrValidation     = errors.New("validation failed")

	// Credential errors
	ErrInvalidFormat  = errors.New("invalid credential format")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrSessionExpired = errors.New("session expired")
	ErrUserSuspended  = errors.New("user suspended")
	ErrAuthInvalid    = errors.New("authentication failed")
	ErrForbidden      = errors.New("forbidden")

	// Admin account errors
	ErrAdminExists       = errors.New("admin account already exists")
	ErrAdminNotFound     = errors.New("admin not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrInvalidCaptcha    = errors.New("invalid captcha")
	ErrCaptchaDisabled   = errors.New("captcha disabled")

	// Other resources
	ErrTokenNotFound         = errors.New("api token not found")
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryExists        = errors.New("category already exists")
	ErrCategoryInUse         = errors.New("category is the default or the last active category")
	ErrUnknownSetting        = errors.New("unknown setting")
	ErrArtifactUnavailable   = errors.New("artifact unavailable")
	ErrRegenerationFailed    = errors.New("regeneration failed")
	ErrNotFound              = errors.New("not found")
	ErrExportFailed          = errors.New("export failed")
	ErrAnalyzerNotConfigured = errors.New("ai provider not configured")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// ValidationError names the request field that was rejected
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, message string) *BusinessError {
	return NewBusinessError("VALIDATION_ERROR", "Validation failed", &ValidationError{Field: field, Message: message})
}

// AsValidationError extracts the field-level detail, if any
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func IsDuplicateURL(err error) bool {
	return errors.Is(err, ErrDuplicateURL)
}

// IsNotFound reports any missing-resource error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLinkNotFound) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrArtifactUnavailable)
}

func IsInvalidStatus(err error) bool {
	return errors.Is(err, ErrInvalidStatus)
}

func IsAlreadyDeleted(err error) bool {
	return errors.Is(err, ErrAlreadyDeleted)
}

func IsInvalidURL(err error) bool {
	return errors.Is(err, ErrInvalidURL)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func IsTokenRevoked(err error) bool {
	return errors.Is(err, ErrTokenRevoked)
}

func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

func IsUserSuspended(err error) bool {
	return errors.Is(err, ErrUserSuspended)
}

// IsAuthFailure reports any credential problem, including the normalized AuthInvalid
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthInvalid) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrUserSuspended) ||
		errors.Is(err, ErrIncorrectPassword) ||
		errors.Is(err, ErrAdminNotFound) ||
		errors.Is(err, ErrInvalidCaptcha)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsAdminExists(err error) bool {
	return errors.Is(err, ErrAdminExists)
}

func IsCategoryExists(err error) bool {
	return errors.Is(err, ErrCategoryExists)
}

func IsCategoryInUse(err error) bool {
	return errors.Is(err, ErrCategoryInUse)
}

// ErrorCodeOf maps an error to the stable machine-readable code exposed by the API
func ErrorCodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsDuplicateURL(err):
		return "DUPLICATE_URL"
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsInvalidStatus(err):
		return "INVALID_STATUS"
	case IsAlreadyDeleted(err):
		return "ALREADY_DELETED"
	case IsValidation(err):
		return "VALIDATION_ERROR"
	case IsInvalidURL(err):
		return "INVALID_URL"
	case IsForbidden(err):
		return "FORBIDDEN"
	case IsAuthFailure(err):
		return "AUTH_INVALID"
	case IsTokenRevoked(err):
		return "TOKEN_REVOKED"
	case IsAdminExists(err), IsCategoryExists(err):
		return "CONFLICT"
	case IsCategoryInUse(err):
		return "CATEGORY_IN_USE"
	default:
		return "INTERNAL_ERROR"
	}
}
