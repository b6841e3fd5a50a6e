// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/magpie/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// LinkRepository defines operations for links
type LinkRepository interface {
	Repository[models.Link, models.LinkFilter]
	// ByURL returns the non-deleted link with the exact url, if any
	ByURL(ctx context.Context, url string) (*models.Link, error)
	Update(ctx context.Context, link *models.Link) error
	ListPublished(ctx context.Context, limit int) ([]*models.Link, error)
	CountByCategory(ctx context.Context, status models.LinkStatus) (map[string]int64, error)
}

// APITokenRepository defines operations for api tokens
type APITokenRepository interface {
	Repository[models.APIToken, models.APITokenFilter]
	ByToken(ctx context.Context, token string) (*models.APIToken, error)
	RecordUsage(ctx context.Context, id uint, ip string, at time.Time) error
	Revoke(ctx context.Context, id uint, at time.Time) error
}

// AdminRepository defines operations for the admin account
type AdminRepository interface {
	Repository[models.Admin, models.AdminFilter]
	ByUsername(ctx context.Context, username string) (*models.Admin, error)
	BySessionToken(ctx context.Context, token string) (*models.Admin, error)
	Update(ctx context.Context, admin *models.Admin) error
	SetSession(ctx context.Context, id uint, token *string, expiresAt *time.Time) error
}

// OperationLogRepository defines operations for operation logs
type OperationLogRepository interface {
	Repository[models.OperationLog, models.OperationLogFilter]
	ListByResource(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*models.OperationLog, error)
	ListFailed(ctx context.Context, limit, offset int) ([]*models.OperationLog, error)
}

// CategoryRepository defines operations for categories
type CategoryRepository interface {
	Repository[models.Category, models.CategoryFilter]
	ByName(ctx context.Context, name string) (*models.Category, error)
	BySlug(ctx context.Context, slug string) (*models.Category, error)
	ListActive(ctx context.Context) ([]*models.Category, error)
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id uint) error
}

// SettingRepository defines operations for settings
type SettingRepository interface {
	Repository[models.Setting, models.SettingFilter]
	ByKey(ctx context.Context, key string) (*models.Setting, error)
	All(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, key, value string) error
	// SeedDefaults inserts missing keys and leaves existing values alone
	SeedDefaults(ctx context.Context, defaults map[string]string) error
}
