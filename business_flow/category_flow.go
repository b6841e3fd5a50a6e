package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CategoryFlow manages the category taxonomy
type CategoryFlow interface {
	// List returns active categories only unless includeInactive is set
	List(ctx context.Context, includeInactive bool) (*dto.CategoryListResponse, error)
	Create(ctx context.Context, req *dto.CreateCategoryRequest, actor *Principal, metadata *ClientMetadata) (*dto.CategoryDTO, error)
	Update(ctx context.Context, id uint, req *dto.UpdateCategoryRequest, actor *Principal, metadata *ClientMetadata) (*dto.CategoryDTO, error)
	Delete(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) error
	Reorder(ctx context.Context, req *dto.ReorderCategoriesRequest, actor *Principal, metadata *ClientMetadata) (*dto.CategoryListResponse, error)
	// SyncAnalyzer pushes the active category names to the analyzer
	SyncAnalyzer(ctx context.Context) error
}

type CategoryFlowImpl struct {
	db           *gorm.DB
	categoryRepo repository.CategoryRepository
	linkRepo     repository.LinkRepository
	settingRepo  repository.SettingRepository
	analyzer     services.AnalyzerService
	opLogger     OperationLogger
	log          logrus.FieldLogger
}

func NewCategoryFlow(
	db *gorm.DB,
	categoryRepo repository.CategoryRepository,
	linkRepo repository.LinkRepository,
	settingRepo repository.SettingRepository,
	analyzer services.AnalyzerService,
	opLogger OperationLogger,
	logger logrus.FieldLogger,
) CategoryFlow {
	return &CategoryFlowImpl{
		db:           db,
		categoryRepo: categoryRepo,
		linkRepo:     linkRepo,
		settingRepo:  settingRepo,
		analyzer:     analyzer,
		opLogger:     opLogger,
		log:          logger.WithField("component", "category"),
	}
}

func (f *CategoryFlowImpl) List(ctx context.Context, includeInactive bool) (*dto.CategoryListResponse, error) {
	var (
		rows []*models.Category
		err  error
	)
	if includeInactive {
		rows, err = f.categoryRepo.ByFilter(ctx, models.CategoryFilter{}, "", 0, 0)
	} else {
		rows, err = f.categoryRepo.ListActive(ctx)
	}
	if err != nil {
		return nil, NewBusinessError("CATEGORY_LIST_FAILED", "Failed to list categories", err)
	}

	counts, err := f.linkRepo.CountByCategory(ctx, models.LinkStatusPublished)
	if err != nil {
		f.log.WithError(err).Warn("Failed to count links per category")
		counts = map[string]int64{}
	}

	items := make([]dto.CategoryDTO, 0, len(rows))
	for _, c := range rows {
		items = append(items, ToCategoryDTO(*c, counts[c.Name]))
	}

	resp := &dto.CategoryListResponse{Items: items}
	if includeInactive {
		for _, icon := range models.CategoryIcons() {
			resp.Icons = append(resp.Icons, string(icon))
		}
	}
	return resp, nil
}

func (f *CategoryFlowImpl) Create(ctx context.Context, req *dto.CreateCategoryRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.CategoryDTO, err error) {
	defer func() {
		entry := OperationEntry{
			Action:       models.OperationCategoryCreate,
			ResourceType: models.ResourceCategory,
			Status:       outcomeOf(err),
			Actor:        actor,
			Metadata:     metadata,
		}
		if resp != nil {
			entry.ResourceID = strconv.FormatUint(uint64(resp.ID), 10)
			entry.Details = map[string]any{"name": resp.Name, "slug": resp.Slug}
		} else {
			entry.Details = errorDetails(nil, err)
		}
		f.opLogger.Log(ctx, entry)
	}()

	if req == nil {
		return nil, NewValidationError("name", "name is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}

	icon := models.CategoryIconFolder
	if req.Icon != "" {
		icon = models.CategoryIcon(req.Icon)
		if !icon.Valid() {
			return nil, NewValidationError("icon", "unknown icon")
		}
	}

	existing, err := f.categoryRepo.ByName(ctx, name)
	if err != nil {
		return nil, NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to check category name", err)
	}
	if existing != nil {
		return nil, NewBusinessError("CATEGORY_EXISTS", "A category with this name already exists", ErrCategoryExists)
	}

	slug, err := f.uniqueSlug(ctx, name, 0)
	if err != nil {
		return nil, err
	}

	order := 0
	if req.DisplayOrder != nil {
		order = *req.DisplayOrder
	} else {
		total, err := f.categoryRepo.Count(ctx, models.CategoryFilter{})
		if err != nil {
			return nil, NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to count categories", err)
		}
		order = int(total)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	category := &models.Category{
		Name:         name,
		Slug:         slug,
		Icon:         icon,
		Description:  strings.TrimSpace(req.Description),
		DisplayOrder: order,
		IsActive:     &active,
	}
	if err := f.categoryRepo.Save(ctx, category); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("CATEGORY_EXISTS", "A category with this name already exists", ErrCategoryExists)
		}
		return nil, NewBusinessError("CATEGORY_CREATE_FAILED", "Failed to create category", err)
	}

	f.syncAnalyzer(ctx)

	out := ToCategoryDTO(*category, 0)
	return &out, nil
}

func (f *CategoryFlowImpl) Update(ctx context.Context, id uint, req *dto.UpdateCategoryRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.CategoryDTO, err error) {
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationCategoryUpdate,
			ResourceType: models.ResourceCategory,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	if req == nil {
		return nil, NewValidationError("body", "request body is required")
	}
	category, err := f.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewValidationError("name", "name must not be empty")
		}
		if name != category.Name {
			other, err := f.categoryRepo.ByName(ctx, name)
			if err != nil {
				return nil, NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to check category name", err)
			}
			if other != nil && other.ID != category.ID {
				return nil, NewBusinessError("CATEGORY_EXISTS", "A category with this name already exists", ErrCategoryExists)
			}
			slug, err := f.uniqueSlug(ctx, name, category.ID)
			if err != nil {
				return nil, err
			}
			category.Name = name
			category.Slug = slug
		}
	}
	if req.Icon != nil {
		icon := models.CategoryIcon(*req.Icon)
		if !icon.Valid() {
			return nil, NewValidationError("icon", "unknown icon")
		}
		category.Icon = icon
	}
	if req.Description != nil {
		category.Description = strings.TrimSpace(*req.Description)
	}
	if req.DisplayOrder != nil {
		category.DisplayOrder = *req.DisplayOrder
	}
	if req.IsActive != nil {
		if !*req.IsActive && utils.IsTrue(category.IsActive) {
			if err := f.guardRemoval(ctx, category); err != nil {
				return nil, err
			}
		}
		category.IsActive = utils.ToPtr(*req.IsActive)
	}

	if err := f.categoryRepo.Update(ctx, category); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("CATEGORY_EXISTS", "A category with this name already exists", ErrCategoryExists)
		}
		return nil, NewBusinessError("CATEGORY_UPDATE_FAILED", "Failed to update category", err)
	}

	f.syncAnalyzer(ctx)

	out := ToCategoryDTO(*category, 0)
	return &out, nil
}

// Delete removes a category. Links keep their stored category strings.
func (f *CategoryFlowImpl) Delete(ctx context.Context, id uint, actor *Principal, metadata *ClientMetadata) (err error) {
	defer func() {
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationCategoryDelete,
			ResourceType: models.ResourceCategory,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       outcomeOf(err),
			Details:      errorDetails(nil, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	category, err := f.load(ctx, id)
	if err != nil {
		return err
	}
	if err := f.guardRemoval(ctx, category); err != nil {
		return err
	}
	if err := f.categoryRepo.Delete(ctx, id); err != nil {
		return NewBusinessError("CATEGORY_DELETE_FAILED", "Failed to delete category", err)
	}

	f.syncAnalyzer(ctx)
	return nil
}

// Reorder assigns display orders following the given id sequence in one transaction
func (f *CategoryFlowImpl) Reorder(ctx context.Context, req *dto.ReorderCategoriesRequest, actor *Principal, metadata *ClientMetadata) (resp *dto.CategoryListResponse, err error) {
	defer func() {
		var ids []uint
		if req != nil {
			ids = req.IDs
		}
		f.opLogger.Log(ctx, OperationEntry{
			Action:       models.OperationCategoryReorder,
			ResourceType: models.ResourceCategory,
			Status:       outcomeOf(err),
			Details:      errorDetails(map[string]any{"ids": ids}, err),
			Actor:        actor,
			Metadata:     metadata,
		})
	}()

	if req == nil || len(req.IDs) == 0 {
		return nil, NewValidationError("ids", "ids are required")
	}
	seen := make(map[uint]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if _, dup := seen[id]; dup {
			return nil, NewValidationError("ids", fmt.Sprintf("duplicate id %d", id))
		}
		seen[id] = struct{}{}
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		for i, id := range req.IDs {
			category, err := f.load(txCtx, id)
			if err != nil {
				return err
			}
			category.DisplayOrder = i
			if err := f.categoryRepo.Update(txCtx, category); err != nil {
				return NewBusinessError("CATEGORY_UPDATE_FAILED", "Failed to reorder categories", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.syncAnalyzer(ctx)
	return f.List(ctx, true)
}

func (f *CategoryFlowImpl) SyncAnalyzer(ctx context.Context) error {
	names, err := f.activeNames(ctx)
	if err != nil {
		return NewBusinessError("CATEGORY_LIST_FAILED", "Failed to list categories", err)
	}
	if f.analyzer != nil {
		f.analyzer.UpdateCategories(names)
	}
	return nil
}

func (f *CategoryFlowImpl) syncAnalyzer(ctx context.Context) {
	if err := f.SyncAnalyzer(ctx); err != nil {
		f.log.WithError(err).Warn("Failed to push categories to analyzer")
	}
}

func (f *CategoryFlowImpl) activeNames(ctx context.Context) ([]string, error) {
	rows, err := f.categoryRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, c := range rows {
		names = append(names, c.Name)
	}
	return names, nil
}

func (f *CategoryFlowImpl) load(ctx context.Context, id uint) (*models.Category, error) {
	category, err := f.categoryRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to lookup category", err)
	}
	if category == nil {
		return nil, NewBusinessError("NOT_FOUND", "Category not found", ErrCategoryNotFound)
	}
	return category, nil
}

// guardRemoval rejects removing the configured default category or the last active one
func (f *CategoryFlowImpl) guardRemoval(ctx context.Context, category *models.Category) error {
	if f.settingRepo != nil {
		setting, err := f.settingRepo.ByKey(ctx, models.SettingDefaultCategory)
		if err != nil {
			return NewBusinessError("SETTING_LOOKUP_FAILED", "Failed to read default category", err)
		}
		if setting != nil && matchesCategory(setting.Value, category) {
			return NewBusinessError("CATEGORY_IN_USE", "The default category cannot be removed", ErrCategoryInUse)
		}
	}

	if !utils.IsTrue(category.IsActive) {
		return nil
	}
	active := true
	count, err := f.categoryRepo.Count(ctx, models.CategoryFilter{IsActive: &active})
	if err != nil {
		return NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to count categories", err)
	}
	if count <= 1 {
		return NewBusinessError("CATEGORY_IN_USE", "The last active category cannot be removed", ErrCategoryInUse)
	}
	return nil
}

func matchesCategory(value string, category *models.Category) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	return strings.EqualFold(value, category.Name) || strings.EqualFold(value, category.Slug)
}

// uniqueSlug derives a slug from name and appends -2, -3... until no other category uses it
func (f *CategoryFlowImpl) uniqueSlug(ctx context.Context, name string, selfID uint) (string, error) {
	base := Slugify(name)
	candidate := base
	for n := 2; ; n++ {
		other, err := f.categoryRepo.BySlug(ctx, candidate)
		if err != nil {
			return "", NewBusinessError("CATEGORY_LOOKUP_FAILED", "Failed to check category slug", err)
		}
		if other == nil || other.ID == selfID {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// Slugify lowercases name and joins runs of letters and digits with single hyphens.
// Non-Latin letters are kept as is.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if slug == "" {
		return "category"
	}
	return utils.TruncateRunes(slug, 100)
}
