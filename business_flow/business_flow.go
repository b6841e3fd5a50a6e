package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ClientMetadata holds client information recorded with every operation log entry
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// PrincipalKind names the credential scheme that authenticated a caller
type PrincipalKind string

const (
	PrincipalAPIToken PrincipalKind = "api_token"
	PrincipalSession  PrincipalKind = "session"
	PrincipalAdminJWT PrincipalKind = "admin_jwt"
	PrincipalSystem   PrincipalKind = "system"
)

// Principal is an authenticated caller. Exactly one of TokenID and UserID is set,
// except for the system principal used by the CLI.
type Principal struct {
	Kind     PrincipalKind
	TokenID  *uint
	UserID   *uint
	Username string
	Role     string
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.UserID != nil && p.Role == models.AdminRole
}

// SystemPrincipal attributes CLI actions
func SystemPrincipal() *Principal {
	return &Principal{Kind: PrincipalSystem, Username: "system"}
}

type principalKey struct{}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored in ctx, or nil
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return utils.ToPtr(formatTime(*t))
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// ToLinkDTO converts a link to the admin view
func ToLinkDTO(l models.Link) dto.LinkDTO {
	return dto.LinkDTO{
		ID:          l.ID,
		URL:         l.URL,
		Domain:      l.Domain,
		Title:       l.Title,
		ContentType: string(l.ContentType),
		Status:      string(l.Status),

		OriginalDescription: l.OriginalDescription,
		OriginalContent:     l.OriginalContent,
		Author:              l.Author,
		PublishDate:         formatTimePtr(l.PublishDate),
		SiteName:            l.SiteName,
		Language:            l.Language,
		OriginalTags:        orEmpty(l.OriginalTags),
		WordCount:           l.WordCount,
		ScrapingFailed:      l.ScrapingFailed,

		AISummary:        l.AISummary,
		AICategory:       l.AICategory,
		AITags:           orEmpty(l.AITags),
		AIReadingTime:    l.AIReadingTime,
		AISentiment:      l.AISentiment,
		AILanguage:       l.AILanguage,
		AIAnalysisFailed: l.AIAnalysisFailed,
		AIError:          l.AIError,

		UserDescription: l.UserDescription,
		UserCategory:    l.UserCategory,
		UserTags:        orEmpty(l.UserTags),

		FinalDescription: l.FinalDescription,
		FinalCategory:    l.FinalCategory,
		FinalTags:        orEmpty(l.FinalTags),

		CreatedAt:   formatTime(l.CreatedAt),
		PublishedAt: formatTimePtr(l.PublishedAt),
		UpdatedAt:   formatTime(l.UpdatedAt),
	}
}

// ToPublicLinkDTO converts a link using the read-time fallback chain
func ToPublicLinkDTO(l models.Link) dto.PublicLinkDTO {
	return dto.PublicLinkDTO{
		ID:          l.ID,
		URL:         l.URL,
		Domain:      l.Domain,
		Title:       l.Title,
		ContentType: string(l.ContentType),
		Description: l.EffectiveDescription(),
		Category:    l.EffectiveCategory(),
		Tags:        orEmpty(l.EffectiveTags()),
		Author:      l.Author,
		SiteName:    l.SiteName,
		Language:    utils.FirstNonEmpty(l.AILanguage, l.Language),
		ReadingTime: l.AIReadingTime,
		PublishedAt: formatTimePtr(l.PublishedAt),
		CreatedAt:   formatTime(l.CreatedAt),
	}
}

func ToAdminDTO(a models.Admin) dto.AdminDTO {
	return dto.AdminDTO{
		ID:          a.ID,
		UUID:        a.UUID.String(),
		Username:    a.Username,
		Role:        a.Role,
		Status:      string(a.Status),
		CreatedAt:   formatTime(a.CreatedAt),
		LastLoginAt: formatTimePtr(a.LastLoginAt),
	}
}

// ToAPITokenDTO masks the token value
func ToAPITokenDTO(t models.APIToken) dto.APITokenDTO {
	return dto.APITokenDTO{
		ID:         t.ID,
		Name:       t.Name,
		Token:      utils.MaskSecret(t.Token),
		Status:     string(t.Status),
		UsageCount: t.UsageCount,
		LastUsedAt: formatTimePtr(t.LastUsedAt),
		LastUsedIP: t.LastUsedIP,
		RevokedAt:  formatTimePtr(t.RevokedAt),
		CreatedAt:  formatTime(t.CreatedAt),
	}
}

func ToCategoryDTO(c models.Category, linkCount int64) dto.CategoryDTO {
	return dto.CategoryDTO{
		ID:           c.ID,
		Name:         c.Name,
		Slug:         c.Slug,
		Icon:         string(c.Icon),
		Description:  c.Description,
		DisplayOrder: c.DisplayOrder,
		IsActive:     utils.IsTrue(c.IsActive),
		LinkCount:    linkCount,
		CreatedAt:    formatTime(c.CreatedAt),
		UpdatedAt:    formatTime(c.UpdatedAt),
	}
}
