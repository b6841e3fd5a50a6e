package dto

type CategoryDTO struct {
	ID           uint   `json:"id" example:"1"`
	Name         string `json:"name" example:"Tech"`
	Slug         string `json:"slug" example:"tech"`
	Icon         string `json:"icon" example:"code"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order" example:"0"`
	IsActive     bool   `json:"is_active" example:"true"`
	LinkCount    int64  `json:"link_count" example:"3"`
	CreatedAt    string `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt    string `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

type CreateCategoryRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=100"`
	Icon         string `json:"icon,omitempty" validate:"omitempty,max=32"`
	Description  string `json:"description,omitempty" validate:"omitempty,max=1000"`
	DisplayOrder *int   `json:"display_order,omitempty" validate:"omitempty,min=0"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

type UpdateCategoryRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Icon         *string `json:"icon,omitempty" validate:"omitempty,max=32"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	DisplayOrder *int    `json:"display_order,omitempty" validate:"omitempty,min=0"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// ReorderCategoriesRequest lists category ids in their new display order
type ReorderCategoriesRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type CategoryListResponse struct {
	Items []CategoryDTO `json:"items"`
	Icons []string      `json:"icons,omitempty"`
}
