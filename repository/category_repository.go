package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/magpie/models"
	"gorm.io/gorm"
)

// CategoryRepositoryImpl implements CategoryRepository interface
type CategoryRepositoryImpl struct {
	*BaseRepository[models.Category, models.CategoryFilter]
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &CategoryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Category, models.CategoryFilter](db),
	}
}

// ByName retrieves a category by name
func (r *CategoryRepositoryImpl) ByName(ctx context.Context, name string) (*models.Category, error) {
	rows, err := r.ByFilter(ctx, models.CategoryFilter{Name: &name}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// BySlug retrieves a category by slug
func (r *CategoryRepositoryImpl) BySlug(ctx context.Context, slug string) (*models.Category, error) {
	rows, err := r.ByFilter(ctx, models.CategoryFilter{Slug: &slug}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListActive returns active categories in display order
func (r *CategoryRepositoryImpl) ListActive(ctx context.Context) ([]*models.Category, error) {
	active := true
	return r.ByFilter(ctx, models.CategoryFilter{IsActive: &active}, "display_order ASC, id ASC", 0, 0)
}

// Delete removes a category row
func (r *CategoryRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	if err := db.Delete(&models.Category{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *CategoryRepositoryImpl) applyFilter(query *gorm.DB, filter models.CategoryFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.Slug != nil {
		query = query.Where("slug = ?", *filter.Slug)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves categories based on filter criteria
func (r *CategoryRepositoryImpl) ByFilter(ctx context.Context, filter models.CategoryFilter, orderBy string, limit, offset int) ([]*models.Category, error) {
	db := r.getDB(ctx)
	if orderBy == "" {
		orderBy = "display_order ASC, id ASC"
	}
	query := paginate(r.applyFilter(db.Model(&models.Category{}), filter), orderBy, limit, offset)

	var rows []*models.Category
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of categories matching the filter
func (r *CategoryRepositoryImpl) Count(ctx context.Context, filter models.CategoryFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Category{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any category matching the filter exists
func (r *CategoryRepositoryImpl) Exists(ctx context.Context, filter models.CategoryFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
