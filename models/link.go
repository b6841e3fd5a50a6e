// Package models contains domain entities and the policy rules attached to them
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// LinkStatus represents the lifecycle state of a link.
type LinkStatus string

const (
	LinkStatusPending   LinkStatus = "pending"
	LinkStatusPublished LinkStatus = "published"
	LinkStatusDraft     LinkStatus = "draft"
	LinkStatusDeleted   LinkStatus = "deleted"
)

// Valid checks if the status is valid.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusPending,
		LinkStatusPublished,
		LinkStatusDraft,
		LinkStatusDeleted:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for LinkStatus.
func (s *LinkStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = LinkStatus(v)
	case []byte:
		*s = LinkStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into LinkStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for LinkStatus.
func (s LinkStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid LinkStatus: %s", s)
	}
	return string(s), nil
}

// ContentType classifies what a URL points at.
type ContentType string

const (
	ContentTypeArticle ContentType = "article"
	ContentTypeVideo   ContentType = "video"
	ContentTypePDF     ContentType = "pdf"
	ContentTypeImage   ContentType = "image"
)

// Link is a bookmarked URL with its scraped, AI-derived, user and final content layers.
type Link struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	URL         string      `gorm:"size:2048;not null;uniqueIndex:uk_links_url_active,where:status <> 'deleted';index:idx_links_url" json:"url"`
	Domain      string      `gorm:"size:255;not null;index:idx_links_domain" json:"domain"`
	Title       string      `gorm:"size:512;not null;default:''" json:"title"`
	ContentType ContentType `gorm:"size:20;not null;default:'article'" json:"content_type"`

	// as scraped
	OriginalDescription string                      `gorm:"type:text" json:"original_description"`
	OriginalContent     string                      `gorm:"type:text" json:"original_content"`
	Author              string                      `gorm:"size:255" json:"author,omitempty"`
	PublishDate         *time.Time                  `json:"publish_date,omitempty"`
	SiteName            string                      `gorm:"size:255" json:"site_name,omitempty"`
	Language            string                      `gorm:"size:16" json:"language,omitempty"`
	OriginalTags        datatypes.JSONSlice[string] `json:"original_tags"`
	WordCount           int                         `gorm:"not null;default:0" json:"word_count"`
	ScrapingFailed      bool                        `gorm:"not null;default:false" json:"scraping_failed"`

	// model-derived
	AISummary        string                      `gorm:"type:text" json:"ai_summary"`
	AICategory       string                      `gorm:"size:100" json:"ai_category"`
	AITags           datatypes.JSONSlice[string] `json:"ai_tags"`
	AIReadingTime    int                         `gorm:"not null;default:0" json:"ai_reading_time"`
	AISentiment      string                      `gorm:"size:20" json:"ai_sentiment,omitempty"`
	AILanguage       string                      `gorm:"size:16" json:"ai_language,omitempty"`
	AIAnalysisFailed bool                        `gorm:"not null;default:false" json:"ai_analysis_failed"`
	AIError          string                      `gorm:"type:text" json:"ai_error,omitempty"`

	// human overrides
	UserDescription string                      `gorm:"type:text" json:"user_description"`
	UserCategory    string                      `gorm:"size:100" json:"user_category"`
	UserTags        datatypes.JSONSlice[string] `json:"user_tags"`

	// served publicly; nil until computed
	FinalDescription *string                     `gorm:"type:text" json:"final_description"`
	FinalCategory    *string                     `gorm:"size:100;index:idx_links_final_category" json:"final_category"`
	FinalTags        datatypes.JSONSlice[string] `json:"final_tags"`

	Status      LinkStatus `gorm:"size:20;not null;default:'pending';index:idx_links_status" json:"status"`
	CreatedAt   time.Time  `gorm:"index:idx_links_created_at" json:"created_at"`
	PublishedAt *time.Time `gorm:"index:idx_links_published_at" json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Link) TableName() string {
	return "links"
}

// LinkFilter represents filter criteria for link queries
type LinkFilter struct {
	ID             *uint
	URL            *string
	Domain         *string
	Status         *LinkStatus
	Statuses       []LinkStatus
	IncludeDeleted bool
	Category       *string
	Tags           []string
	Search         *string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}

// NormalizeTags trims tags, drops blanks and removes duplicates keeping first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ResolveDescription applies user -> AI -> original precedence.
func (l *Link) ResolveDescription() string {
	for _, v := range []string{l.UserDescription, l.AISummary, l.OriginalDescription} {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ResolveCategory applies user -> AI precedence.
func (l *Link) ResolveCategory() string {
	if c := strings.TrimSpace(l.UserCategory); c != "" {
		return c
	}
	return strings.TrimSpace(l.AICategory)
}

// ResolveTags picks user tags when present, otherwise AI tags.
func (l *Link) ResolveTags() []string {
	if tags := NormalizeTags(l.UserTags); len(tags) > 0 {
		return tags
	}
	if tags := NormalizeTags(l.AITags); len(tags) > 0 {
		return tags
	}
	return []string{}
}

// ComputeFinal fills the final fields from the merge chain.
func (l *Link) ComputeFinal() {
	desc := l.ResolveDescription()
	cat := l.ResolveCategory()
	l.FinalDescription = &desc
	l.FinalCategory = &cat
	l.FinalTags = datatypes.NewJSONSlice(l.ResolveTags())
}

// ClearFinal resets the final fields, as required for pending records.
func (l *Link) ClearFinal() {
	l.FinalDescription = nil
	l.FinalCategory = nil
	l.FinalTags = nil
}

// Publish computes finals and moves the link to published.
func (l *Link) Publish(now time.Time) {
	l.ComputeFinal()
	l.Status = LinkStatusPublished
	if l.PublishedAt == nil {
		l.PublishedAt = &now
	}
}

// SaveAsDraft moves the link to draft. Final fields are kept so a later publish is cheap.
func (l *Link) SaveAsDraft() {
	l.ComputeFinal()
	l.Status = LinkStatusDraft
	l.PublishedAt = nil
}

// ResetForReanalysis returns the record to pending and drops overrides and finals.
func (l *Link) ResetForReanalysis() {
	l.Status = LinkStatusPending
	l.UserDescription = ""
	l.UserCategory = ""
	l.UserTags = nil
	l.PublishedAt = nil
	l.ClearFinal()
}

// MarkDeleted soft-deletes the link. Deletion is terminal.
func (l *Link) MarkDeleted() {
	l.Status = LinkStatusDeleted
}

func (l *Link) IsDeleted() bool {
	return l.Status == LinkStatusDeleted
}

func (l *Link) IsPending() bool {
	return l.Status == LinkStatusPending
}

// EffectiveDescription is the read-time fallback chain.
func (l *Link) EffectiveDescription() string {
	if l.FinalDescription != nil && strings.TrimSpace(*l.FinalDescription) != "" {
		return *l.FinalDescription
	}
	return l.ResolveDescription()
}

// EffectiveCategory is the read-time fallback chain.
func (l *Link) EffectiveCategory() string {
	if l.FinalCategory != nil && strings.TrimSpace(*l.FinalCategory) != "" {
		return *l.FinalCategory
	}
	return l.ResolveCategory()
}

// EffectiveTags is the read-time fallback chain.
func (l *Link) EffectiveTags() []string {
	if len(l.FinalTags) > 0 {
		return NormalizeTags(l.FinalTags)
	}
	return l.ResolveTags()
}
