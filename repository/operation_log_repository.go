package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/magpie/models"
	"gorm.io/gorm"
)

// OperationLogRepositoryImpl implements OperationLogRepository interface
type OperationLogRepositoryImpl struct {
	*BaseRepository[models.OperationLog, models.OperationLogFilter]
}

// NewOperationLogRepository creates a new operation log repository
func NewOperationLogRepository(db *gorm.DB) OperationLogRepository {
	return &OperationLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OperationLog, models.OperationLogFilter](db),
	}
}

// ListByResource retrieves the history of one resource with pagination
func (r *OperationLogRepositoryImpl) ListByResource(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*models.OperationLog, error) {
	filter := models.OperationLogFilter{ResourceType: &resourceType, ResourceID: &resourceID}
	logs, err := r.ByFilter(ctx, filter, "created_at DESC, id DESC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation logs by resource: %w", err)
	}
	return logs, nil
}

// ListFailed retrieves failed operation log entries with pagination
func (r *OperationLogRepositoryImpl) ListFailed(ctx context.Context, limit, offset int) ([]*models.OperationLog, error) {
	status := models.OperationStatusFailed
	logs, err := r.ByFilter(ctx, models.OperationLogFilter{Status: &status}, "created_at DESC, id DESC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed operation logs: %w", err)
	}
	return logs, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *OperationLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.OperationLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.ResourceType != nil {
		query = query.Where("resource_type = ?", *filter.ResourceType)
	}
	if filter.ResourceID != nil {
		query = query.Where("resource_id = ?", *filter.ResourceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.TokenID != nil {
		query = query.Where("token_id = ?", *filter.TokenID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves operation logs based on filter criteria
func (r *OperationLogRepositoryImpl) ByFilter(ctx context.Context, filter models.OperationLogFilter, orderBy string, limit, offset int) ([]*models.OperationLog, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.OperationLog{}), filter), orderBy, limit, offset)

	var logs []*models.OperationLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Count returns the number of operation logs matching the filter
func (r *OperationLogRepositoryImpl) Count(ctx context.Context, filter models.OperationLogFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.OperationLog{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any operation log matching the filter exists
func (r *OperationLogRepositoryImpl) Exists(ctx context.Context, filter models.OperationLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
