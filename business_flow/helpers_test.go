package businessflow_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const analysisReply = `Here is the analysis:
{"summary": "A practical guide to testing Go code.", "category": "Tech", "tags": ["go", "testing", "Go"], "language": "en", "sentiment": "positive", "reading_time": 3}`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubExtractor returns canned content per URL, or a generic article
type stubExtractor struct {
	mu      sync.Mutex
	content map[string]*services.ScrapedContent
	err     error
	calls   int
}

func newStubExtractor() *stubExtractor {
	return &stubExtractor{content: make(map[string]*services.ScrapedContent)}
}

func (s *stubExtractor) Extract(_ context.Context, rawURL string) (*services.ScrapedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.content[rawURL]; ok {
		out := *c
		return &out, nil
	}
	u, err := services.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &services.ScrapedContent{
		URL:         rawURL,
		Domain:      services.DomainOf(u),
		ContentType: models.ContentTypeArticle,
		Title:       "Testing in Go",
		Description: "A walkthrough of testing Go code with the standard library",
		Content:     "Table driven tests keep Go code honest.",
		Author:      "Gopher",
		SiteName:    "Example",
		Tags:        []string{"go", "Go", " testing "},
		WordCount:   450,
	}, nil
}

func (s *stubExtractor) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// stubCompleter answers every prompt with reply, or fails with err
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (c *stubCompleter) Complete(_ context.Context, _ services.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *stubCompleter) set(reply string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply, c.err = reply, err
}

func (c *stubCompleter) factory(services.AIConfig) (services.Completer, error) {
	return c, nil
}

// recordingNotifier keeps every notification reason in order
type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) Notify(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNotifier) Reasons() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = nil
}

// linkHarness wires the link flows over a fresh sqlite database
type linkHarness struct {
	db        *testutil.TestDB
	fixtures  *testutil.TestFixtures
	linkRepo  repository.LinkRepository
	extractor *stubExtractor
	completer *stubCompleter
	notifier  *recordingNotifier
	analyzer  services.AnalyzerService
	opLogs    businessflow.OperationLogFlow

	ingest businessflow.LinkIngestFlow
	review businessflow.LinkReviewFlow
	public businessflow.PublicLinkFlow
}

func newLinkHarness(t *testing.T) *linkHarness {
	t.Helper()

	db := testutil.NewTestDB(t)
	fixtures := testutil.NewTestFixtures(db)
	_, err := fixtures.CreateTestCategories("tech", "design", "Other")
	require.NoError(t, err)

	log := quietLogger()
	linkRepo := repository.NewLinkRepository(db.DB)
	categoryRepo := repository.NewCategoryRepository(db.DB)
	opLogs := businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log)

	extractor := newStubExtractor()
	completer := &stubCompleter{reply: analysisReply}
	analyzer := services.NewAnalyzerService(services.AIConfig{
		Provider:        services.ProviderOpenAI,
		APIKey:          "test-key",
		Model:           "test-model",
		DefaultCategory: "Other",
	}, nil, completer.factory, log)
	notifier := &recordingNotifier{}

	return &linkHarness{
		db:        db,
		fixtures:  fixtures,
		linkRepo:  linkRepo,
		extractor: extractor,
		completer: completer,
		notifier:  notifier,
		analyzer:  analyzer,
		opLogs:    opLogs,
		ingest:    businessflow.NewLinkIngestFlow(linkRepo, categoryRepo, extractor, analyzer, notifier, opLogs, log),
		review:    businessflow.NewLinkReviewFlow(linkRepo, categoryRepo, extractor, analyzer, notifier, opLogs, log),
		public:    businessflow.NewPublicLinkFlow(linkRepo, log),
	}
}

func (h *linkHarness) reload(t *testing.T, id uint) *models.Link {
	t.Helper()
	link, err := h.linkRepo.ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, link)
	return link
}

func adminActor() *businessflow.Principal {
	id := uint(1)
	return &businessflow.Principal{Kind: businessflow.PrincipalAdminJWT, UserID: &id, Username: "admin", Role: models.AdminRole}
}

func testMetadata() *businessflow.ClientMetadata {
	return businessflow.NewClientMetadata("127.0.0.1", "magpie-test")
}
