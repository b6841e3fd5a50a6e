package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/magpie/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepositoryImpl implements SettingRepository interface.
type SettingRepositoryImpl struct {
	*BaseRepository[models.Setting, models.SettingFilter]
}

// NewSettingRepository creates a new setting repository.
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &SettingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Setting, models.SettingFilter](db),
	}
}

// ByKey retrieves a setting by key.
func (r *SettingRepositoryImpl) ByKey(ctx context.Context, key string) (*models.Setting, error) {
	db := r.getDB(ctx)
	var row models.Setting
	if err := db.Where("setting_key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// All returns every setting as a key/value map.
func (r *SettingRepositoryImpl) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.ByFilter(ctx, models.SettingFilter{}, "setting_key ASC", 0, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Upsert writes a value, creating the key when it does not exist.
func (r *SettingRepositoryImpl) Upsert(ctx context.Context, key, value string) error {
	db := r.getDB(ctx)
	now := time.Now().UTC()
	row := models.Setting{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.Assignments(map[string]any{"value": value, "updated_at": now}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// SeedDefaults inserts missing keys.
func (r *SettingRepositoryImpl) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	if len(defaults) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	now := time.Now().UTC()
	rows := make([]*models.Setting, 0, len(defaults))
	for k, v := range defaults {
		rows = append(rows, &models.Setting{Key: k, Value: v, CreatedAt: now, UpdatedAt: now})
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *SettingRepositoryImpl) applyFilter(query *gorm.DB, filter models.SettingFilter) *gorm.DB {
	if filter.Key != nil {
		query = query.Where("setting_key = ?", *filter.Key)
	}
	if len(filter.Keys) > 0 {
		query = query.Where("setting_key IN ?", filter.Keys)
	}
	return query
}

// ByFilter retrieves settings based on filter criteria.
func (r *SettingRepositoryImpl) ByFilter(ctx context.Context, filter models.SettingFilter, orderBy string, limit, offset int) ([]*models.Setting, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Setting{}), filter), orderBy, limit, offset)

	var rows []*models.Setting
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of settings matching the filter.
func (r *SettingRepositoryImpl) Count(ctx context.Context, filter models.SettingFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Setting{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any setting matching the filter exists.
func (r *SettingRepositoryImpl) Exists(ctx context.Context, filter models.SettingFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
