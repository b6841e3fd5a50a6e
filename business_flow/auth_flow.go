package businessflow

import (
	"context"
	"errors"
	"strings"

	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
)

// CredentialKind identifies the bearer scheme
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialAPIToken
	CredentialSessionToken
	CredentialAdminJWT
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialAPIToken:
		return "api_token"
	case CredentialSessionToken:
		return "session_token"
	case CredentialAdminJWT:
		return "admin_jwt"
	default:
		return "none"
	}
}

// Credential is a bearer value tagged with the scheme chosen by its prefix
type Credential struct {
	Kind  CredentialKind
	Value string
}

// ParseCredential strips an optional Bearer prefix and dispatches on the token prefix once
func ParseCredential(header string) Credential {
	value := strings.TrimSpace(header)
	if len(value) >= 6 && strings.EqualFold(value[:6], "bearer") {
		if rest := value[6:]; rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			value = strings.TrimSpace(rest)
		}
	}
	switch {
	case value == "":
		return Credential{Kind: CredentialNone}
	case strings.HasPrefix(value, utils.APITokenPrefix):
		return Credential{Kind: CredentialAPIToken, Value: value}
	case strings.HasPrefix(value, utils.SessionTokenPrefix):
		return Credential{Kind: CredentialSessionToken, Value: value}
	default:
		return Credential{Kind: CredentialAdminJWT, Value: value}
	}
}

// AuthFlow verifies the three credential schemes
type AuthFlow interface {
	VerifyAPIToken(ctx context.Context, token, ip string) (*models.APIToken, error)
	VerifySessionToken(ctx context.Context, token string) (*models.Admin, error)
	// VerifyAdminJWT returns nil for any invalid token or a non-admin role
	VerifyAdminJWT(token string) *services.AdminClaims
	AuthenticateTokenOrAdmin(ctx context.Context, header, ip string) (*Principal, error)
	AuthenticateAdmin(ctx context.Context, header string) (*Principal, error)
}

type AuthFlowImpl struct {
	tokenRepo    repository.APITokenRepository
	adminRepo    repository.AdminRepository
	tokenService services.TokenService
	log          logrus.FieldLogger
}

func NewAuthFlow(tokenRepo repository.APITokenRepository, adminRepo repository.AdminRepository, tokenService services.TokenService, logger logrus.FieldLogger) AuthFlow {
	return &AuthFlowImpl{
		tokenRepo:    tokenRepo,
		adminRepo:    adminRepo,
		tokenService: tokenService,
		log:          logger.WithField("component", "auth"),
	}
}

// VerifyAPIToken checks the format without touching storage, then looks the token up.
// Every successful check records usage.
func (f *AuthFlowImpl) VerifyAPIToken(ctx context.Context, token, ip string) (*models.APIToken, error) {
	if err := services.ValidateAPITokenFormat(token); err != nil {
		return nil, NewBusinessError("INVALID_FORMAT", "Invalid API token format", ErrInvalidFormat)
	}

	record, err := f.tokenRepo.ByToken(ctx, token)
	if err != nil {
		return nil, NewBusinessError("TOKEN_LOOKUP_FAILED", "Failed to lookup API token", err)
	}
	if record == nil {
		return nil, NewBusinessError("INVALID_TOKEN", "Invalid API token", ErrInvalidToken)
	}
	if record.IsRevoked() {
		return nil, NewBusinessError("TOKEN_REVOKED", "API token has been revoked", ErrTokenRevoked)
	}

	now := utils.UTCNow()
	if err := f.tokenRepo.RecordUsage(ctx, record.ID, ip, now); err != nil {
		f.log.WithError(err).WithField("token_id", record.ID).Warn("Failed to record API token usage")
	} else {
		record.UsageCount++
		record.LastUsedAt = &now
		if ip != "" {
			record.LastUsedIP = &ip
		}
	}
	return record, nil
}

func (f *AuthFlowImpl) VerifySessionToken(ctx context.Context, token string) (*models.Admin, error) {
	if err := services.ValidateSessionTokenFormat(token); err != nil {
		return nil, NewBusinessError("INVALID_FORMAT", "Invalid session token format", ErrInvalidFormat)
	}

	admin, err := f.adminRepo.BySessionToken(ctx, token)
	if err != nil {
		return nil, NewBusinessError("SESSION_LOOKUP_FAILED", "Failed to lookup session", err)
	}
	if admin == nil {
		return nil, NewBusinessError("INVALID_TOKEN", "Invalid session token", ErrInvalidToken)
	}
	if admin.SessionExpired(utils.UTCNow()) {
		return nil, NewBusinessError("SESSION_EXPIRED", "Session has expired", ErrSessionExpired)
	}
	if !admin.IsActive() {
		return nil, NewBusinessError("USER_SUSPENDED", "Account is suspended", ErrUserSuspended)
	}
	return admin, nil
}

func (f *AuthFlowImpl) VerifyAdminJWT(token string) *services.AdminClaims {
	if f.tokenService == nil || token == "" {
		return nil
	}
	claims, err := f.tokenService.ValidateAdminJWT(token)
	if err != nil || claims == nil {
		return nil
	}
	if claims.Role != models.AdminRole {
		return nil
	}
	return claims
}

// AuthenticateTokenOrAdmin accepts an API token, an admin session or an admin JWT.
// Scheme-specific failures are reported as ErrAuthInvalid.
func (f *AuthFlowImpl) AuthenticateTokenOrAdmin(ctx context.Context, header, ip string) (*Principal, error) {
	cred := ParseCredential(header)
	if cred.Kind == CredentialAPIToken {
		record, err := f.VerifyAPIToken(ctx, cred.Value, ip)
		if err != nil {
			return nil, f.authInvalid(cred, err)
		}
		return &Principal{Kind: PrincipalAPIToken, TokenID: utils.ToPtr(record.ID), Username: record.Name}, nil
	}
	return f.authenticateAdmin(ctx, cred)
}

// AuthenticateAdmin accepts an admin session or an admin JWT only
func (f *AuthFlowImpl) AuthenticateAdmin(ctx context.Context, header string) (*Principal, error) {
	cred := ParseCredential(header)
	if cred.Kind == CredentialAPIToken {
		return nil, NewBusinessError("FORBIDDEN", "API tokens cannot access admin endpoints", ErrForbidden)
	}
	return f.authenticateAdmin(ctx, cred)
}

func (f *AuthFlowImpl) authenticateAdmin(ctx context.Context, cred Credential) (*Principal, error) {
	switch cred.Kind {
	case CredentialSessionToken:
		admin, err := f.VerifySessionToken(ctx, cred.Value)
		if err != nil {
			return nil, f.authInvalid(cred, err)
		}
		if admin.Role != models.AdminRole {
			return nil, f.authInvalid(cred, ErrForbidden)
		}
		return &Principal{Kind: PrincipalSession, UserID: utils.ToPtr(admin.ID), Username: admin.Username, Role: admin.Role}, nil
	case CredentialAdminJWT:
		claims := f.VerifyAdminJWT(cred.Value)
		if claims == nil {
			return nil, f.authInvalid(cred, ErrInvalidToken)
		}
		return &Principal{Kind: PrincipalAdminJWT, UserID: utils.ToPtr(claims.UserID), Username: claims.Username, Role: claims.Role}, nil
	default:
		return nil, f.authInvalid(cred, errors.New("missing credential"))
	}
}

func (f *AuthFlowImpl) authInvalid(cred Credential, cause error) error {
	f.log.WithError(cause).WithField("scheme", cred.Kind.String()).Debug("Authentication failed")
	return NewBusinessError("AUTH_INVALID", "Authentication failed", ErrAuthInvalid)
}
