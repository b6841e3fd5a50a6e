package businessflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AdminAuthFlow manages the single admin account and its sessions
type AdminAuthFlow interface {
	CreateAdmin(ctx context.Context, req *dto.CreateAdminRequest, metadata *ClientMetadata) (*dto.AdminDTO, error)
	InitCaptcha(ctx context.Context) (*dto.AdminCaptchaInitResponse, error)
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
	Logout(ctx context.Context, actor *Principal, metadata *ClientMetadata) error
	ChangePassword(ctx context.Context, actor *Principal, req *dto.ChangePasswordRequest, metadata *ClientMetadata) error
}

// AdminAuthFlowImpl provides admin creation, captcha-guarded login and session management
type AdminAuthFlowImpl struct {
	adminRepo    repository.AdminRepository
	tokenService services.TokenService
	captchaSvc   services.CaptchaService
	opLogger     OperationLogger
	sessionTTL   time.Duration
	log          logrus.FieldLogger
}

// NewAdminAuthFlow creates the flow. A nil captcha service disables the captcha step.
func NewAdminAuthFlow(adminRepo repository.AdminRepository, tokenService services.TokenService, captchaSvc services.CaptchaService, opLogger OperationLogger, sessionTTL time.Duration, logger logrus.FieldLogger) AdminAuthFlow {
	if sessionTTL <= 0 {
		sessionTTL = utils.SessionTTL
	}
	return &AdminAuthFlowImpl{
		adminRepo:    adminRepo,
		tokenService: tokenService,
		captchaSvc:   captchaSvc,
		opLogger:     opLogger,
		sessionTTL:   sessionTTL,
		log:          logger.WithField("component", "admin_auth"),
	}
}

// CreateAdmin creates the admin account. Only one account may ever exist.
func (af *AdminAuthFlowImpl) CreateAdmin(ctx context.Context, req *dto.CreateAdminRequest, metadata *ClientMetadata) (*dto.AdminDTO, error) {
	if req == nil || len(strings.TrimSpace(req.Username)) < 3 {
		return nil, NewValidationError("username", "username must be at least 3 characters")
	}
	if len(req.Password) < 8 {
		return nil, NewValidationError("password", "password must be at least 8 characters")
	}

	exists, err := af.adminRepo.Exists(ctx, models.AdminFilter{})
	if err != nil {
		return nil, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to check admin account", err)
	}
	if exists {
		return nil, NewBusinessError("ADMIN_EXISTS", "An admin account already exists", ErrAdminExists)
	}

	salt, err := services.NewPasswordSalt()
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}
	hash, err := services.HashPassword(req.Password, salt)
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}

	admin := &models.Admin{
		UUID:         uuid.New(),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         models.AdminRole,
		Status:       models.AdminStatusActive,
	}
	if err := af.adminRepo.Save(ctx, admin); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("ADMIN_EXISTS", "An admin account already exists", ErrAdminExists)
		}
		return nil, NewBusinessError("ADMIN_CREATE_FAILED", "Failed to create admin", err)
	}

	af.opLogger.Log(ctx, OperationEntry{
		Action:       models.OperationAdminCreate,
		ResourceType: models.ResourceAdmin,
		ResourceID:   strconv.FormatUint(uint64(admin.ID), 10),
		Status:       models.OperationStatusSuccess,
		Details:      map[string]any{"username": admin.Username},
		Actor:        SystemPrincipal(),
		Metadata:     metadata,
	})

	out := ToAdminDTO(*admin)
	return &out, nil
}

func (af *AdminAuthFlowImpl) InitCaptcha(ctx context.Context) (*dto.AdminCaptchaInitResponse, error) {
	if af.captchaSvc == nil {
		return &dto.AdminCaptchaInitResponse{Enabled: false}, nil
	}
	ch, err := af.captchaSvc.GenerateRotate(ctx)
	if err != nil {
		return nil, NewBusinessError("CAPTCHA_INIT_FAILED", "Failed to initialize captcha", err)
	}
	return &dto.AdminCaptchaInitResponse{
		Enabled:           true,
		ChallengeID:       ch.ID,
		MasterImageBase64: ch.MasterImageBase64,
		ThumbImageBase64:  ch.ThumbImageBase64,
	}, nil
}

// Login checks the captcha first, then the account, then the password.
// It issues a session token and a JWT.
func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (resp *dto.AdminLoginResponse, err error) {
	startedAt := time.Now()
	var admin *models.Admin
	defer func() {
		entry := OperationEntry{
			Action:       models.OperationAdminLogin,
			ResourceType: models.ResourceAdmin,
			Status:       models.OperationStatusSuccess,
			Metadata:     metadata,
			StartedAt:    startedAt,
		}
		if admin != nil {
			entry.ResourceID = strconv.FormatUint(uint64(admin.ID), 10)
			entry.Actor = &Principal{Kind: PrincipalSession, UserID: utils.ToPtr(admin.ID), Username: admin.Username, Role: admin.Role}
		}
		if err != nil {
			entry.Action = models.OperationAdminLoginFailed
			entry.Status = models.OperationStatusFailed
			username := ""
			if req != nil {
				username = req.Username
			}
			entry.Details = errorDetails(map[string]any{"username": username}, err)
		}
		af.opLogger.Log(ctx, entry)
	}()

	if req == nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, NewValidationError("username", "username and password are required")
	}

	if af.captchaSvc != nil {
		if req.ChallengeID == "" || !af.captchaSvc.VerifyRotate(ctx, req.ChallengeID, req.UserAngle) {
			return nil, NewBusinessError("CAPTCHA_INVALID", "Captcha validation failed", ErrInvalidCaptcha)
		}
	}

	found, err := af.adminRepo.ByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to lookup admin", err)
	}
	if found == nil {
		return nil, NewBusinessError("ADMIN_NOT_FOUND", "Invalid username or password", ErrAdminNotFound)
	}
	admin = found
	if !admin.IsActive() {
		return nil, NewBusinessError("USER_SUSPENDED", "Admin account is suspended", ErrUserSuspended)
	}
	if !services.VerifyPassword(admin.PasswordHash, req.Password, admin.PasswordSalt) {
		return nil, NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Invalid username or password", ErrIncorrectPassword)
	}

	sessionToken, err := af.tokenService.GenerateSessionToken()
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate session", err)
	}
	accessToken, accessExpiresAt, err := af.tokenService.GenerateAdminJWT(admin.ID, admin.Username, admin.Role)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	now := utils.UTCNow()
	sessionExpiresAt := now.Add(af.sessionTTL)
	admin.SessionToken = &sessionToken
	admin.SessionExpiresAt = &sessionExpiresAt
	admin.LastLoginAt = &now
	if err := af.adminRepo.Update(ctx, admin); err != nil {
		return nil, NewBusinessError("SESSION_CREATE_FAILED", "Failed to store session", err)
	}

	return &dto.AdminLoginResponse{
		Admin: ToAdminDTO(*admin),
		Session: dto.AdminSessionDTO{
			SessionToken:         sessionToken,
			SessionExpiresAt:     formatTime(sessionExpiresAt),
			AccessToken:          accessToken,
			AccessTokenExpiresAt: formatTime(accessExpiresAt),
			TokenType:            "Bearer",
		},
	}, nil
}

// Logout clears the stored session. JWTs stay valid until they expire.
func (af *AdminAuthFlowImpl) Logout(ctx context.Context, actor *Principal, metadata *ClientMetadata) error {
	if !actor.IsAdmin() {
		return NewBusinessError("FORBIDDEN", "Only the admin can log out", ErrForbidden)
	}
	if err := af.adminRepo.SetSession(ctx, *actor.UserID, nil, nil); err != nil {
		return NewBusinessError("LOGOUT_FAILED", "Failed to clear session", err)
	}
	af.opLogger.Log(ctx, OperationEntry{
		Action:       models.OperationAdminLogout,
		ResourceType: models.ResourceAdmin,
		ResourceID:   strconv.FormatUint(uint64(*actor.UserID), 10),
		Status:       models.OperationStatusSuccess,
		Actor:        actor,
		Metadata:     metadata,
	})
	return nil
}

// ChangePassword rotates the salt and hash and drops the current session
func (af *AdminAuthFlowImpl) ChangePassword(ctx context.Context, actor *Principal, req *dto.ChangePasswordRequest, metadata *ClientMetadata) (err error) {
	startedAt := time.Now()
	defer func() {
		if actor == nil || actor.UserID == nil {
			return
		}
		af.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationPasswordChanged,
			ResourceType: models.ResourceAdmin,
			ResourceID:   strconv.FormatUint(uint64(*actor.UserID), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	if !actor.IsAdmin() {
		return NewBusinessError("FORBIDDEN", "Only the admin can change the password", ErrForbidden)
	}
	if req == nil || len(req.NewPassword) < 8 {
		return NewValidationError("new_password", "password must be at least 8 characters")
	}

	admin, err := af.adminRepo.ByID(ctx, *actor.UserID)
	if err != nil {
		return NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to lookup admin", err)
	}
	if admin == nil {
		return NewBusinessError("ADMIN_NOT_FOUND", "Admin not found", ErrAdminNotFound)
	}
	if !services.VerifyPassword(admin.PasswordHash, req.CurrentPassword, admin.PasswordSalt) {
		return NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Current password is incorrect", ErrIncorrectPassword)
	}

	salt, err := services.NewPasswordSalt()
	if err != nil {
		return NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}
	hash, err := services.HashPassword(req.NewPassword, salt)
	if err != nil {
		return NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}

	admin.PasswordHash = hash
	admin.PasswordSalt = salt
	admin.SessionToken = nil
	admin.SessionExpiresAt = nil
	if err := af.adminRepo.Update(ctx, admin); err != nil {
		return NewBusinessError("PASSWORD_CHANGE_FAILED", "Failed to change password", err)
	}
	return nil
}
