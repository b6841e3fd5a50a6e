package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/handlers"
	"github.com/amirphl/magpie/app/middleware"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticExtractor struct{}

func (staticExtractor) Extract(_ context.Context, rawURL string) (*services.ScrapedContent, error) {
	u, err := services.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &services.ScrapedContent{
		URL:         rawURL,
		Domain:      services.DomainOf(u),
		ContentType: models.ContentTypeArticle,
		Title:       "Handler test page",
		Description: "A page about software",
		Content:     "Some words about software and code.",
		WordCount:   6,
	}, nil
}

type staticCompleter struct{}

func (staticCompleter) Complete(context.Context, services.CompletionRequest) (string, error) {
	return `{"summary":"Summary","category":"tech","tags":["go"],"language":"en","sentiment":"neutral","reading_time":1}`, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

type testServer struct {
	app        *fiber.App
	fixtures   *testutil.TestFixtures
	apiToken   string
	adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewTestDB(t)
	fixtures := testutil.NewTestFixtures(db)
	_, err := fixtures.CreateTestCategories("tech", "Other")
	require.NoError(t, err)
	admin, err := fixtures.CreateTestAdmin()
	require.NoError(t, err)
	token, err := fixtures.CreateTestAPIToken("ci")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	tokens, err := services.NewTokenService(time.Hour, "magpie-test", "magpie-admin", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)
	adminJWT, _, err := tokens.GenerateAdminJWT(admin.ID, admin.Username, admin.Role)
	require.NoError(t, err)

	linkRepo := repository.NewLinkRepository(db.DB)
	categoryRepo := repository.NewCategoryRepository(db.DB)
	settingRepo := repository.NewSettingRepository(db.DB)
	adminRepo := repository.NewAdminRepository(db.DB)
	tokenRepo := repository.NewAPITokenRepository(db.DB)
	opLogs := businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log)

	analyzer := services.NewAnalyzerService(services.AIConfig{Provider: services.ProviderOpenAI, APIKey: "k", DefaultCategory: "Other"}, nil,
		func(services.AIConfig) (services.Completer, error) { return staticCompleter{}, nil }, log)
	store := services.NewMemoryArtifactStore()
	regen := services.NewRegeneratorService(linkRepo, store, services.SiteInfo{URL: "https://links.example.com"}, log)

	ingest := businessflow.NewLinkIngestFlow(linkRepo, categoryRepo, staticExtractor{}, analyzer, noopNotifier{}, opLogs, log)
	review := businessflow.NewLinkReviewFlow(linkRepo, categoryRepo, staticExtractor{}, analyzer, noopNotifier{}, opLogs, log)
	categories := businessflow.NewCategoryFlow(db.DB, categoryRepo, linkRepo, settingRepo, analyzer, opLogs, log)
	artifacts := businessflow.NewArtifactFlow(store, regen, opLogs, log)

	linkHandler := handlers.NewLinkHandler(ingest, review, businessflow.NewLinkExportFlow(linkRepo, opLogs, log), log)
	publicHandler := handlers.NewPublicHandler(businessflow.NewPublicLinkFlow(linkRepo, log), categories, artifacts, log)
	auth := middleware.NewAuthMiddleware(businessflow.NewAuthFlow(tokenRepo, adminRepo, tokens, log), log)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/links", publicHandler.ListLinks)
	api.Get("/links/:id", publicHandler.GetLink)
	api.Post("/links", auth.TokenOrAdmin(), linkHandler.Ingest)
	adminAPI := api.Group("/admin", auth.Admin())
	adminAPI.Get("/links/:id", linkHandler.AdminGet)
	adminAPI.Delete("/links/:id", linkHandler.AdminDelete)
	adminAPI.Post("/links/:id/confirm", linkHandler.Confirm)
	app.Get("/feed.xml", publicHandler.Feed)

	return &testServer{
		app:        app,
		fixtures:   fixtures,
		apiToken:   token.Token,
		adminToken: adminJWT,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func TestLinkHandler_Ingest(t *testing.T) {
	s := newTestServer(t)

	t.Run("RequiresCredential", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", "", dto.IngestLinkRequest{URL: "https://example.com/a"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.False(t, env.Success)
		assert.Equal(t, "AUTH_INVALID", env.Error.Code)
	})

	t.Run("APITokenCreatesPendingLink", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", s.apiToken, dto.IngestLinkRequest{URL: "https://example.com/a"})
		require.Equal(t, http.StatusCreated, status)
		assert.True(t, env.Success)

		var link dto.LinkDTO
		require.NoError(t, json.Unmarshal(env.Data, &link))
		assert.Equal(t, string(models.LinkStatusPending), link.Status)
		assert.Equal(t, "tech", link.AICategory)
	})

	t.Run("XAPIKeyHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/links", bytes.NewReader([]byte(`{"url":"https://example.com/x-api-key"}`)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", s.apiToken)
		resp, err := s.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("DuplicateIsConflict", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", s.apiToken, dto.IngestLinkRequest{URL: "https://example.com/a"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "DUPLICATE_URL", env.Error.Code)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", s.apiToken, dto.IngestLinkRequest{URL: "ftp://example.com/file"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_URL", env.Error.Code)
	})

	t.Run("MissingURLIsValidationError", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", s.apiToken, map[string]any{"skip_confirm": true})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		assert.Equal(t, "url", env.Error.Details["field"])
	})

	t.Run("AdminJWTPublishes", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, "/api/v1/links", s.adminToken, dto.IngestLinkRequest{URL: "https://example.com/b", SkipConfirm: true})
		require.Equal(t, http.StatusCreated, status)

		var link dto.LinkDTO
		require.NoError(t, json.Unmarshal(env.Data, &link))
		assert.Equal(t, string(models.LinkStatusPublished), link.Status)

		status, env = s.do(t, http.MethodGet, "/api/v1/links/"+strconv.FormatUint(uint64(link.ID), 10), "", nil)
		require.Equal(t, http.StatusOK, status)
		var public dto.PublicLinkDTO
		require.NoError(t, json.Unmarshal(env.Data, &public))
		assert.Equal(t, "https://example.com/b", public.URL)
		assert.Equal(t, "tech", public.Category)
	})
}

func TestLinkHandler_Admin(t *testing.T) {
	s := newTestServer(t)
	pending, err := s.fixtures.CreateTestLink("https://example.com/review", testutil.WithAIFields("summary", "tech", "go"))
	require.NoError(t, err)
	path := "/api/v1/admin/links/" + strconv.FormatUint(uint64(pending.ID), 10)

	t.Run("APITokenForbidden", func(t *testing.T) {
		status, env := s.do(t, http.MethodGet, path, s.apiToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN", env.Error.Code)
	})

	t.Run("Get", func(t *testing.T) {
		status, env := s.do(t, http.MethodGet, path, s.adminToken, nil)
		require.Equal(t, http.StatusOK, status)
		var link dto.LinkDTO
		require.NoError(t, json.Unmarshal(env.Data, &link))
		assert.Equal(t, pending.ID, link.ID)
	})

	t.Run("BadAndUnknownIDs", func(t *testing.T) {
		status, env := s.do(t, http.MethodGet, "/api/v1/admin/links/abc", s.adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

		status, env = s.do(t, http.MethodGet, "/api/v1/admin/links/99999", s.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)
	})

	t.Run("PendingIsNotPublic", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/api/v1/links/"+strconv.FormatUint(uint64(pending.ID), 10), "", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("DeleteTwiceIsGone", func(t *testing.T) {
		status, _ := s.do(t, http.MethodDelete, path, s.adminToken, nil)
		assert.Equal(t, http.StatusOK, status)

		status, env := s.do(t, http.MethodDelete, path, s.adminToken, nil)
		assert.Equal(t, http.StatusGone, status)
		assert.Equal(t, "ALREADY_DELETED", env.Error.Code)
	})

	t.Run("ConfirmDeletedIsConflict", func(t *testing.T) {
		status, env := s.do(t, http.MethodPost, path+"/confirm", s.adminToken, dto.ConfirmLinkRequest{Description: "reviewed"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "INVALID_STATUS", env.Error.Code)
	})
}

func TestPublicHandler_ListAndFeed(t *testing.T) {
	s := newTestServer(t)
	_, err := s.fixtures.CreateTestLink("https://example.com/pub", testutil.WithAIFields("summary", "tech", "go"), testutil.Published(time.Now()))
	require.NoError(t, err)
	_, err = s.fixtures.CreateTestLink("https://example.com/pending", testutil.WithAIFields("summary", "tech", "go"))
	require.NoError(t, err)

	status, env := s.do(t, http.MethodGet, "/api/v1/links", "", nil)
	require.Equal(t, http.StatusOK, status)
	var list dto.PublicLinkListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 20, list.PageSize)

	status, env = s.do(t, http.MethodGet, "/api/v1/links?page_size=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "page_size", env.Error.Details["field"])

	// the feed is generated on first request
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/feed.xml", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/rss+xml")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "https://example.com/pub")
	assert.NotContains(t, string(body), "https://example.com/pending")
}
