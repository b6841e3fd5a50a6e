package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// OperationEntry is one auditable action
type OperationEntry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Status       models.OperationStatus
	Details      map[string]any
	Actor        *Principal
	Metadata     *ClientMetadata
	StartedAt    time.Time
}

// OperationLogger records operation log entries. Log never fails the caller.
type OperationLogger interface {
	Log(ctx context.Context, entry OperationEntry)
}

// OperationLogFlow records and lists operation logs
type OperationLogFlow interface {
	OperationLogger
	List(ctx context.Context, req *dto.ListOperationLogsRequest) (*dto.OperationLogListResponse, error)
}

type OperationLogFlowImpl struct {
	opLogRepo repository.OperationLogRepository
	log       logrus.FieldLogger
}

func NewOperationLogFlow(opLogRepo repository.OperationLogRepository, logger logrus.FieldLogger) OperationLogFlow {
	return &OperationLogFlowImpl{
		opLogRepo: opLogRepo,
		log:       logger.WithField("component", "operation_log"),
	}
}

func (f *OperationLogFlowImpl) Log(ctx context.Context, entry OperationEntry) {
	defer func() {
		if r := recover(); r != nil {
			f.log.WithField("action", entry.Action).Errorf("Operation log panicked: %v", r)
		}
	}()

	record := &models.OperationLog{
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		Status:       entry.Status,
	}
	if record.Status == "" {
		record.Status = models.OperationStatusSuccess
	}
	if entry.ResourceID != "" {
		record.ResourceID = utils.ToPtr(entry.ResourceID)
	}
	if !entry.StartedAt.IsZero() {
		record.DurationMs = time.Since(entry.StartedAt).Milliseconds()
	}
	if len(entry.Details) > 0 {
		if raw, err := json.Marshal(entry.Details); err == nil {
			record.Details = datatypes.JSON(raw)
		}
	}

	// a token actor and a user actor are mutually exclusive
	if entry.Actor != nil {
		switch {
		case entry.Actor.TokenID != nil:
			record.TokenID = entry.Actor.TokenID
		case entry.Actor.UserID != nil:
			record.UserID = entry.Actor.UserID
		}
	}

	if entry.Metadata != nil {
		if entry.Metadata.IPAddress != "" {
			record.IPAddress = utils.ToPtr(entry.Metadata.IPAddress)
		}
		if entry.Metadata.UserAgent != "" {
			record.UserAgent = utils.ToPtr(entry.Metadata.UserAgent)
		}
		if entry.Metadata.RequestID != "" {
			record.RequestID = utils.ToPtr(entry.Metadata.RequestID)
		}
	}
	if record.RequestID == nil {
		if id := utils.RequestIDFrom(ctx); id != "" {
			record.RequestID = &id
		}
	}

	// detach from the request transaction so a rollback does not drop the entry
	saveCtx := context.WithValue(ctx, repository.TxContextKey, nil)
	if err := f.opLogRepo.Save(saveCtx, record); err != nil {
		f.log.WithError(err).WithFields(logrus.Fields{
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
		}).Warn("Failed to write operation log")
	}
}

func (f *OperationLogFlowImpl) List(ctx context.Context, req *dto.ListOperationLogsRequest) (*dto.OperationLogListResponse, error) {
	if req == nil {
		req = &dto.ListOperationLogsRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	filter := models.OperationLogFilter{}
	if req.Action != "" {
		filter.Action = &req.Action
	}
	if req.Status != "" {
		status := models.OperationStatus(req.Status)
		filter.Status = &status
	}
	if req.ResourceType != "" {
		filter.ResourceType = &req.ResourceType
	}
	if req.ResourceID != "" {
		filter.ResourceID = &req.ResourceID
	}

	total, err := f.opLogRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("OPERATION_LOG_LIST_FAILED", "Failed to count operation logs", err)
	}
	rows, err := f.opLogRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("OPERATION_LOG_LIST_FAILED", "Failed to list operation logs", err)
	}

	items := make([]dto.OperationLogDTO, 0, len(rows))
	for _, r := range rows {
		item := dto.OperationLogDTO{
			ID:           r.ID,
			Action:       r.Action,
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Status:       string(r.Status),
			TokenID:      r.TokenID,
			UserID:       r.UserID,
			IPAddress:    r.IPAddress,
			UserAgent:    r.UserAgent,
			RequestID:    r.RequestID,
			DurationMs:   r.DurationMs,
			CreatedAt:    formatTime(r.CreatedAt),
		}
		if len(r.Details) > 0 {
			var details any
			if err := json.Unmarshal(r.Details, &details); err == nil {
				item.Details = details
			}
		}
		items = append(items, item)
	}

	return &dto.OperationLogListResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// outcomeOf maps an operation error to the logged status
func outcomeOf(err error) models.OperationStatus {
	if err != nil {
		return models.OperationStatusFailed
	}
	return models.OperationStatusSuccess
}

// errorDetails adds the error text to the entry details
func errorDetails(details map[string]any, err error) map[string]any {
	if err == nil {
		return details
	}
	if details == nil {
		details = make(map[string]any)
	}
	details["error"] = err.Error()
	return details
}
