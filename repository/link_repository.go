package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/magpie/models"
	"gorm.io/gorm"
)

// LinkRepositoryImpl implements LinkRepository interface
type LinkRepositoryImpl struct {
	*BaseRepository[models.Link, models.LinkFilter]
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &LinkRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Link, models.LinkFilter](db),
	}
}

// ByURL retrieves the non-deleted link for a url
func (r *LinkRepositoryImpl) ByURL(ctx context.Context, url string) (*models.Link, error) {
	db := r.getDB(ctx)

	var link models.Link
	err := db.Where("url = ? AND status <> ?", url, models.LinkStatusDeleted).
		Order("id DESC").
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find link by url: %w", err)
	}

	return &link, nil
}

// ListPublished returns the most recently published links
func (r *LinkRepositoryImpl) ListPublished(ctx context.Context, limit int) ([]*models.Link, error) {
	status := models.LinkStatusPublished
	return r.ByFilter(ctx, models.LinkFilter{Status: &status}, "published_at DESC, id DESC", limit, 0)
}

// CountByCategory groups links in the given status by final category
func (r *LinkRepositoryImpl) CountByCategory(ctx context.Context, status models.LinkStatus) (map[string]int64, error) {
	db := r.getDB(ctx)

	type row struct {
		Category string
		Total    int64
	}
	var rows []row
	err := db.Model(&models.Link{}).
		Select("COALESCE(final_category, '') AS category, COUNT(*) AS total").
		Where("status = ?", status).
		Group("final_category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count links by category: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Category] += r.Total
	}
	return out, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *LinkRepositoryImpl) applyFilter(query *gorm.DB, filter models.LinkFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.URL != nil {
		query = query.Where("url = ?", *filter.URL)
	}
	if filter.Domain != nil {
		query = query.Where("domain = ?", *filter.Domain)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	} else if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	} else if !filter.IncludeDeleted {
		query = query.Where("status <> ?", models.LinkStatusDeleted)
	}
	if filter.Category != nil {
		query = query.Where("final_category = ?", *filter.Category)
	}
	for _, tag := range filter.Tags {
		// tags are stored as a JSON array of strings
		query = query.Where("CAST(final_tags AS TEXT) LIKE ?", "%"+jsonQuoted(tag)+"%")
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(*filter.Search)) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(final_description) LIKE ? OR LOWER(url) LIKE ?)", like, like, like)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves links based on filter criteria
func (r *LinkRepositoryImpl) ByFilter(ctx context.Context, filter models.LinkFilter, orderBy string, limit, offset int) ([]*models.Link, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Link{}), filter)
	query = paginate(query, orderBy, limit, offset)

	var rows []*models.Link
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return rows, nil
}

// Count returns the number of links matching the filter
func (r *LinkRepositoryImpl) Count(ctx context.Context, filter models.LinkFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Link{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// Exists checks if any link matching the filter exists
func (r *LinkRepositoryImpl) Exists(ctx context.Context, filter models.LinkFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

func jsonQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
