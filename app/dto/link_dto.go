package dto

// IngestLinkRequest submits a URL to the ingestion pipeline
type IngestLinkRequest struct {
	URL         string   `json:"url" validate:"required,max=2048" example:"https://example.com/a"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100" example:"tech"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,max=50"`
	SkipConfirm bool     `json:"skip_confirm" example:"false"`
}

// LinkDTO is the full admin view of a link
type LinkDTO struct {
	ID          uint   `json:"id" example:"1"`
	URL         string `json:"url" example:"https://example.com/a"`
	Domain      string `json:"domain" example:"example.com"`
	Title       string `json:"title"`
	ContentType string `json:"content_type" example:"article"`
	Status      string `json:"status" example:"pending"`

	OriginalDescription string   `json:"original_description"`
	OriginalContent     string   `json:"original_content,omitempty"`
	Author              string   `json:"author,omitempty"`
	PublishDate         *string  `json:"publish_date,omitempty"`
	SiteName            string   `json:"site_name,omitempty"`
	Language            string   `json:"language,omitempty"`
	OriginalTags        []string `json:"original_tags"`
	WordCount           int      `json:"word_count"`
	ScrapingFailed      bool     `json:"scraping_failed"`

	AISummary        string   `json:"ai_summary"`
	AICategory       string   `json:"ai_category"`
	AITags           []string `json:"ai_tags"`
	AIReadingTime    int      `json:"ai_reading_time"`
	AISentiment      string   `json:"ai_sentiment,omitempty"`
	AILanguage       string   `json:"ai_language,omitempty"`
	AIAnalysisFailed bool     `json:"ai_analysis_failed"`
	AIError          string   `json:"ai_error,omitempty"`

	UserDescription string   `json:"user_description"`
	UserCategory    string   `json:"user_category"`
	UserTags        []string `json:"user_tags"`

	FinalDescription *string  `json:"final_description"`
	FinalCategory    *string  `json:"final_category"`
	FinalTags        []string `json:"final_tags"`

	CreatedAt   string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	PublishedAt *string `json:"published_at,omitempty" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   string  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// ConfirmLinkRequest reviews a pending link. Publish defaults to true.
type ConfirmLinkRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,max=512"`
	Description string   `json:"description" validate:"required,max=5000"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,max=50"`
	Publish     *bool    `json:"publish,omitempty"`
}

// UpdateLinkRequest patches a link; omitted fields are left alone
type UpdateLinkRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,max=512"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,max=50"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=published draft"`
}

// BatchLinkParams applies to every item of a batch confirm
type BatchLinkParams struct {
	Publish  *bool    `json:"publish,omitempty"`
	Category *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,max=50"`
}

type BatchLinkRequest struct {
	IDs    []uint           `json:"ids" validate:"required,min=1,max=200,dive,gt=0"`
	Action string           `json:"action" validate:"required,oneof=confirm delete reanalyze" example:"delete"`
	Params *BatchLinkParams `json:"params,omitempty"`
}

// BatchItemResult outcomes
const (
	BatchOutcomeProcessed = "processed"
	BatchOutcomeFailed    = "failed"
	BatchOutcomeSkipped   = "skipped"
)

type BatchItemResult struct {
	ID      uint   `json:"id"`
	Outcome string `json:"outcome" example:"processed"`
	Code    string `json:"code,omitempty" example:"NOT_FOUND"`
	Error   string `json:"error,omitempty"`
}

type BatchLinkResponse struct {
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Results   []BatchItemResult `json:"results"`
}

// AdminListLinksRequest filters the admin link listing
type AdminListLinksRequest struct {
	Status         string   `query:"status" validate:"omitempty,oneof=pending published draft deleted"`
	IncludeDeleted bool     `query:"include_deleted"`
	Category       string   `query:"category" validate:"omitempty,max=100"`
	Tags           []string `query:"tags" validate:"omitempty,max=10,dive,max=50"`
	Search         string   `query:"search" validate:"omitempty,max=200"`
	Page           int      `query:"page" validate:"omitempty,min=1"`
	PageSize       int      `query:"page_size" validate:"omitempty,min=1,max=100"`
}

type LinkListResponse struct {
	Items    []LinkDTO `json:"items"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// PublicListLinksRequest filters the public link listing
type PublicListLinksRequest struct {
	Category string   `query:"category" validate:"omitempty,max=100"`
	Tags     []string `query:"tags" validate:"omitempty,max=5,dive,min=1,max=50"`
	Search   string   `query:"search" validate:"omitempty,max=200"`
	Page     int      `query:"page" validate:"omitempty,min=1"`
	PageSize int      `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PublicLinkDTO is what anonymous readers see
type PublicLinkDTO struct {
	ID          uint     `json:"id" example:"1"`
	URL         string   `json:"url" example:"https://example.com/a"`
	Domain      string   `json:"domain" example:"example.com"`
	Title       string   `json:"title"`
	ContentType string   `json:"content_type" example:"article"`
	Description string   `json:"description"`
	Category    string   `json:"category" example:"tech"`
	Tags        []string `json:"tags"`
	Author      string   `json:"author,omitempty"`
	SiteName    string   `json:"site_name,omitempty"`
	Language    string   `json:"language,omitempty"`
	ReadingTime int      `json:"reading_time" example:"4"`
	PublishedAt *string  `json:"published_at,omitempty" example:"2024-01-15T10:30:00Z"`
	CreatedAt   string   `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type PublicLinkListResponse struct {
	Items    []PublicLinkDTO `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type CategoryCountDTO struct {
	Category string `json:"category" example:"tech"`
	Count    int64  `json:"count" example:"12"`
}

type StatsResponse struct {
	Total      int64              `json:"total"`
	Categories []CategoryCountDTO `json:"categories"`
}

// ExportLinksRequest selects which statuses get a sheet; empty means all live statuses
type ExportLinksRequest struct {
	Statuses []string `query:"status" validate:"omitempty,max=4,dive,oneof=pending published draft deleted"`
}

type RegenerateResponse struct {
	GeneratedAt string `json:"generated_at" example:"2024-01-15T10:30:00Z"`
}
