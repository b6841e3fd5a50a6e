package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/magpie/models"
	"gorm.io/gorm"
)

// APITokenRepositoryImpl implements APITokenRepository interface
type APITokenRepositoryImpl struct {
	*BaseRepository[models.APIToken, models.APITokenFilter]
}

// NewAPITokenRepository creates a new api token repository
func NewAPITokenRepository(db *gorm.DB) APITokenRepository {
	return &APITokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.APIToken, models.APITokenFilter](db),
	}
}

// ByToken retrieves a token by its exact value
func (r *APITokenRepositoryImpl) ByToken(ctx context.Context, token string) (*models.APIToken, error) {
	db := r.getDB(ctx)

	var row models.APIToken
	if err := db.Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find api token: %w", err)
	}
	return &row, nil
}

// RecordUsage increments the usage counter and stamps the last use
func (r *APITokenRepositoryImpl) RecordUsage(ctx context.Context, id uint, ip string, at time.Time) error {
	db := r.getDB(ctx)

	err := db.Model(&models.APIToken{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": at,
			"last_used_ip": ip,
			"updated_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record api token usage: %w", err)
	}
	return nil
}

// Revoke moves an active token to revoked; revoked tokens are left untouched
func (r *APITokenRepositoryImpl) Revoke(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)

	err := db.Model(&models.APIToken{}).
		Where("id = ? AND status = ?", id, models.APITokenStatusActive).
		Updates(map[string]any{
			"status":     models.APITokenStatusRevoked,
			"revoked_at": at,
			"updated_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke api token: %w", err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *APITokenRepositoryImpl) applyFilter(query *gorm.DB, filter models.APITokenFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Token != nil {
		query = query.Where("token = ?", *filter.Token)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// ByFilter retrieves api tokens based on filter criteria
func (r *APITokenRepositoryImpl) ByFilter(ctx context.Context, filter models.APITokenFilter, orderBy string, limit, offset int) ([]*models.APIToken, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.APIToken{}), filter), orderBy, limit, offset)

	var rows []*models.APIToken
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of api tokens matching the filter
func (r *APITokenRepositoryImpl) Count(ctx context.Context, filter models.APITokenFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.APIToken{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any api token matching the filter exists
func (r *APITokenRepositoryImpl) Exists(ctx context.Context, filter models.APITokenFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
