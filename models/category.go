package models

import "time"

// CategoryIcon is one of the preset icons the admin UI can render
type CategoryIcon string

const (
	CategoryIconFolder   CategoryIcon = "folder"
	CategoryIconCode     CategoryIcon = "code"
	CategoryIconBook     CategoryIcon = "book"
	CategoryIconVideo    CategoryIcon = "video"
	CategoryIconImage    CategoryIcon = "image"
	CategoryIconNews     CategoryIcon = "news"
	CategoryIconTool     CategoryIcon = "tool"
	CategoryIconDesign   CategoryIcon = "design"
	CategoryIconScience  CategoryIcon = "science"
	CategoryIconBusiness CategoryIcon = "business"
	CategoryIconLife     CategoryIcon = "life"
	CategoryIconStar     CategoryIcon = "star"
)

var categoryIcons = []CategoryIcon{
	CategoryIconFolder, CategoryIconCode, CategoryIconBook, CategoryIconVideo,
	CategoryIconImage, CategoryIconNews, CategoryIconTool, CategoryIconDesign,
	CategoryIconScience, CategoryIconBusiness, CategoryIconLife, CategoryIconStar,
}

// CategoryIcons lists the preset icon values
func CategoryIcons() []CategoryIcon {
	out := make([]CategoryIcon, len(categoryIcons))
	copy(out, categoryIcons)
	return out
}

func (i CategoryIcon) Valid() bool {
	for _, v := range categoryIcons {
		if v == i {
			return true
		}
	}
	return false
}

// Category is an admin-managed taxonomy entry.
// Slug is unique and derived from Name.
type Category struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"size:100;not null;uniqueIndex:uk_categories_name" json:"name"`
	Slug         string       `gorm:"size:120;not null;uniqueIndex:uk_categories_slug" json:"slug"`
	Icon         CategoryIcon `gorm:"size:32;not null;default:'folder'" json:"icon"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	DisplayOrder int          `gorm:"not null;default:0;index:idx_categories_display_order" json:"display_order"`
	IsActive     *bool        `gorm:"not null;default:true;index:idx_categories_is_active" json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Category) TableName() string { return "categories" }

// CategoryFilter represents filter criteria for category queries
type CategoryFilter struct {
	ID       *uint
	Name     *string
	Slug     *string
	IsActive *bool
}
