package handlers

import (
	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/middleware"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type CategoryHandlerInterface interface {
	List(c fiber.Ctx) error
	Create(c fiber.Ctx) error
	Update(c fiber.Ctx) error
	Delete(c fiber.Ctx) error
	Reorder(c fiber.Ctx) error
}

type CategoryHandler struct {
	baseHandler
	flow businessflow.CategoryFlow
}

func NewCategoryHandler(flow businessflow.CategoryFlow, logger logrus.FieldLogger) CategoryHandlerInterface {
	return &CategoryHandler{
		baseHandler: newBaseHandler(logger, "category_handler"),
		flow:        flow,
	}
}

// List returns every category, including inactive ones, and the icon presets
// @Summary List categories (admin)
// @Tags Admin Categories
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.CategoryListResponse}
// @Router /api/v1/admin/categories [get]
func (h *CategoryHandler) List(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.List(ctx, true)
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Categories retrieved", resp)
}

// Create adds a category
// @Summary Create category
// @Tags Admin Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCategoryRequest true "Category"
// @Success 201 {object} dto.APIResponse{data=dto.CategoryDTO}
// @Failure 409 {object} dto.APIResponse "Category exists"
// @Router /api/v1/admin/categories [post]
func (h *CategoryHandler) Create(c fiber.Ctx) error {
	var req dto.CreateCategoryRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Create(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Category created", resp)
}

// Update changes a category
// @Summary Update category
// @Tags Admin Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Param request body dto.UpdateCategoryRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.CategoryDTO}
// @Failure 404 {object} dto.APIResponse "Category not found"
// @Failure 409 {object} dto.APIResponse "Default or last active category"
// @Router /api/v1/admin/categories/{id} [put]
func (h *CategoryHandler) Update(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}
	var req dto.UpdateCategoryRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Update(ctx, id, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Category updated", resp)
}

// Delete removes a category
// @Summary Delete category
// @Tags Admin Categories
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Category not found"
// @Failure 409 {object} dto.APIResponse "Default or last active category"
// @Router /api/v1/admin/categories/{id} [delete]
func (h *CategoryHandler) Delete(c fiber.Ctx) error {
	id, ok, err := h.idParam(c)
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	if err := h.flow.Delete(ctx, id, middleware.PrincipalFrom(c), h.metadata(c)); err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Category deleted", fiber.Map{"id": id})
}

// Reorder sets the display order
// @Summary Reorder categories
// @Tags Admin Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ReorderCategoriesRequest true "Category IDs in display order"
// @Success 200 {object} dto.APIResponse{data=dto.CategoryListResponse}
// @Router /api/v1/admin/categories/reorder [put]
func (h *CategoryHandler) Reorder(c fiber.Ctx) error {
	var req dto.ReorderCategoriesRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.Reorder(ctx, &req, middleware.PrincipalFrom(c), h.metadata(c))
	if err != nil {
		return h.HandleError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Categories reordered", resp)
}
