package testing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/amirphl/magpie/app/services"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Default credentials used by CreateTestAdmin
const (
	TestAdminUsername = "admin"
	TestAdminPassword = "S3curePassw0rd"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// LinkOption customizes a fixture link before it is stored
type LinkOption func(*models.Link)

func WithStatus(status models.LinkStatus) LinkOption {
	return func(l *models.Link) { l.Status = status }
}

func WithAIFields(summary, category string, tags ...string) LinkOption {
	return func(l *models.Link) {
		l.AISummary = summary
		l.AICategory = category
		l.AITags = datatypes.JSONSlice[string](tags)
	}
}

func WithUserFields(description, category string, tags ...string) LinkOption {
	return func(l *models.Link) {
		l.UserDescription = description
		l.UserCategory = category
		l.UserTags = datatypes.JSONSlice[string](tags)
	}
}

// Published computes the final fields and publishes at the given time
func Published(at time.Time) LinkOption {
	return func(l *models.Link) { l.Publish(at) }
}

// CreateTestLink stores a pending article link for url
func (tf *TestFixtures) CreateTestLink(url string, opts ...LinkOption) (*models.Link, error) {
	link := &models.Link{
		URL:                 url,
		Domain:              "example.com",
		Title:               "Example article",
		ContentType:         models.ContentTypeArticle,
		OriginalDescription: "Original description",
		OriginalContent:     "Some readable content about Go programming.",
		WordCount:           6,
		Status:              models.LinkStatusPending,
	}
	for _, opt := range opts {
		opt(link)
	}
	if err := tf.DB.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link: %w", err)
	}
	return link, nil
}

// CreateTestAPIToken stores an active token and returns it with its raw value
func (tf *TestFixtures) CreateTestAPIToken(name string) (*models.APIToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	token := &models.APIToken{
		Token:  utils.APITokenPrefix + hex.EncodeToString(b),
		Name:   name,
		Status: models.APITokenStatusActive,
	}
	if err := tf.DB.DB.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create test api token: %w", err)
	}
	return token, nil
}

// RevokeTestAPIToken marks the token revoked directly in storage
func (tf *TestFixtures) RevokeTestAPIToken(token *models.APIToken) error {
	now := utils.UTCNow()
	token.Status = models.APITokenStatusRevoked
	token.RevokedAt = &now
	return tf.DB.DB.Save(token).Error
}

// CreateTestAdmin stores the admin account with TestAdminPassword
func (tf *TestFixtures) CreateTestAdmin() (*models.Admin, error) {
	salt, err := services.NewPasswordSalt()
	if err != nil {
		return nil, err
	}
	hash, err := services.HashPassword(TestAdminPassword, salt)
	if err != nil {
		return nil, err
	}
	admin := &models.Admin{
		UUID:         uuid.New(),
		Username:     TestAdminUsername,
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         models.AdminRole,
		Status:       models.AdminStatusActive,
	}
	if err := tf.DB.DB.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create test admin: %w", err)
	}
	return admin, nil
}

// CreateTestCategories stores active categories in the given order
func (tf *TestFixtures) CreateTestCategories(names ...string) ([]*models.Category, error) {
	out := make([]*models.Category, 0, len(names))
	for i, name := range names {
		c := &models.Category{
			Name:         name,
			Slug:         fmt.Sprintf("category-%d", i+1),
			Icon:         models.CategoryIconFolder,
			DisplayOrder: i,
			IsActive:     utils.ToPtr(true),
		}
		if err := tf.DB.DB.Create(c).Error; err != nil {
			return nil, fmt.Errorf("failed to create test category %s: %w", name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SetTestSetting writes a setting row
func (tf *TestFixtures) SetTestSetting(key, value string) error {
	return tf.DB.DB.Create(&models.Setting{Key: key, Value: value}).Error
}
