package businessflow

import (
	"context"
	"strconv"
	"strings"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
)

// APITokenFlow issues, lists and revokes API tokens
type APITokenFlow interface {
	Create(ctx context.Context, req *dto.CreateAPITokenRequest, actor *Principal, metadata *ClientMetadata) (*dto.CreateAPITokenResponse, error)
	List(ctx context.Context) (*dto.APITokenListResponse, error)
	Revoke(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (*dto.APITokenDTO, error)
}

type APITokenFlowImpl struct {
	tokenRepo    repository.APITokenRepository
	tokenService services.TokenService
	opLogger     OperationLogger
	log          logrus.FieldLogger
}

func NewAPITokenFlow(tokenRepo repository.APITokenRepository, tokenService services.TokenService, opLogger OperationLogger, logger logrus.FieldLogger) APITokenFlow {
	return &APITokenFlowImpl{
		tokenRepo:    tokenRepo,
		tokenService: tokenService,
		opLogger:     opLogger,
		log:          logger.WithField("component", "api_token"),
	}
}

// Create returns the full token value. It is never shown again.
func (f *APITokenFlowImpl) Create(ctx context.Context, req *dto.CreateAPITokenRequest, actor *Principal, metadata *ClientMetadata) (*dto.CreateAPITokenResponse, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, NewValidationError("name", "name is required")
	}
	name := utils.TruncateRunes(strings.TrimSpace(req.Name), 255)

	value, err := f.tokenService.GenerateAPIToken()
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate API token", err)
	}

	token := &models.APIToken{
		Token:  value,
		Name:   name,
		Status: models.APITokenStatusActive,
	}
	if err := f.tokenRepo.Save(ctx, token); err != nil {
		return nil, NewBusinessError("TOKEN_CREATE_FAILED", "Failed to store API token", err)
	}

	f.opLogger.Log(ctx, OperationEntry{
		Action:       models.OperationTokenCreate,
		ResourceType: models.ResourceAPIToken,
		ResourceID:   strconv.FormatUint(uint64(token.ID), 10),
		Status:       models.OperationStatusSuccess,
		Details:      map[string]any{"name": token.Name},
		Actor:        actor,
		Metadata:     metadata,
	})
	f.log.WithField("token_id", token.ID).Info("API token created")

	out := ToAPITokenDTO(*token)
	out.Token = value
	return &dto.CreateAPITokenResponse{
		APITokenDTO: out,
		Message:     "Store this token now. It will not be shown again.",
	}, nil
}

func (f *APITokenFlowImpl) List(ctx context.Context) (*dto.APITokenListResponse, error) {
	rows, err := f.tokenRepo.ByFilter(ctx, models.APITokenFilter{}, "created_at DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("TOKEN_LIST_FAILED", "Failed to list API tokens", err)
	}
	items := make([]dto.APITokenDTO, 0, len(rows))
	for _, t := range rows {
		items = append(items, ToAPITokenDTO(*t))
	}
	return &dto.APITokenListResponse{Items: items}, nil
}

// Revoke is one-way. Revoking a revoked token fails with ErrTokenRevoked and changes nothing.
func (f *APITokenFlowImpl) Revoke(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (resp *dto.APITokenDTO, err error) {
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationTokenRevoke,
			ResourceType: models.ResourceAPIToken,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	token, err := f.tokenRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("TOKEN_LOOKUP_FAILED", "Failed to lookup API token", err)
	}
	if token == nil {
		return nil, NewBusinessError("NOT_FOUND", "API token not found", ErrTokenNotFound)
	}
	if token.IsRevoked() {
		return nil, NewBusinessError("TOKEN_REVOKED", "API token is already revoked", ErrTokenRevoked)
	}

	now := utils.UTCNow()
	if err := f.tokenRepo.Revoke(ctx, id, now); err != nil {
		return nil, NewBusinessError("TOKEN_REVOKE_FAILED", "Failed to revoke API token", err)
	}
	token.Status = models.APITokenStatusRevoked
	token.RevokedAt = &now

	out := ToAPITokenDTO(*token)
	return &out, nil
}
