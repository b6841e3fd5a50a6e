package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/sirupsen/logrus"
)

// ArtifactFlow serves and rebuilds the sitemap and feed
type ArtifactFlow interface {
	// Serve returns the stored artifact, regenerating first when it is missing
	Serve(ctx context.Context, name string) (*services.Artifact, error)
	Regenerate(ctx context.Context, actor *Principal, metadata *ClientMetadata) (*dto.RegenerateResponse, error)
}

type ArtifactFlowImpl struct {
	store       services.ArtifactStore
	regenerator services.RegeneratorService
	opLogger    OperationLogger
	log         logrus.FieldLogger
}

func NewArtifactFlow(store services.ArtifactStore, regenerator services.RegeneratorService, opLogger OperationLogger, logger logrus.FieldLogger) ArtifactFlow {
	return &ArtifactFlowImpl{
		store:       store,
		regenerator: regenerator,
		opLogger:    opLogger,
		log:         logger.WithField("component", "artifacts"),
	}
}

func (f *ArtifactFlowImpl) Serve(ctx context.Context, name string) (*services.Artifact, error) {
	if name != services.ArtifactSitemap && name != services.ArtifactFeed {
		return nil, NewBusinessError("NOT_FOUND", "Unknown artifact", ErrArtifactUnavailable)
	}

	a, err := f.store.Get(ctx, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, services.ErrArtifactNotFound) {
		return nil, NewBusinessError("ARTIFACT_READ_FAILED", "Failed to read artifact", err)
	}

	f.log.WithField("artifact", name).Info("Artifact missing, regenerating")
	if err := f.regenerator.Regenerate(ctx); err != nil {
		return nil, NewBusinessError("REGENERATION_FAILED", "Failed to regenerate artifacts", errors.Join(ErrRegenerationFailed, err))
	}
	a, err = f.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, services.ErrArtifactNotFound) {
			return nil, NewBusinessError("NOT_FOUND", "Artifact unavailable", ErrArtifactUnavailable)
		}
		return nil, NewBusinessError("ARTIFACT_READ_FAILED", "Failed to read artifact", err)
	}
	return a, nil
}

// Regenerate rebuilds synchronously, unlike the fire-and-forget notifier
func (f *ArtifactFlowImpl) Regenerate(ctx context.Context, actor *Principal, metadata *ClientMetadata) (resp *dto.RegenerateResponse, err error) {
	startedAt := time.Now()
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationRegenerate,
			ResourceType: models.ResourceSite,
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
			StartedAt:    startedAt,
		})
	}()

	if err := f.regenerator.Regenerate(ctx); err != nil {
		return nil, NewBusinessError("REGENERATION_FAILED", "Failed to regenerate artifacts", errors.Join(ErrRegenerationFailed, err))
	}

	generatedAt := startedAt.UTC()
	if a, err := f.store.Get(ctx, services.ArtifactSitemap); err == nil {
		generatedAt = a.GeneratedAt
	}
	return &dto.RegenerateResponse{GeneratedAt: formatTime(generatedAt)}, nil
}
