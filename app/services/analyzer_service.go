package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
)

const (
	maxPromptChars         = 8000
	defaultAnalyzerTimeout = 30 * time.Second
	defaultTemperature     = 0.3
	heuristicTagCount      = 5
)

// Sentiment values accepted from the model
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// AIConfig is the live analyzer configuration, sourced from settings
type AIConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	Timeout         time.Duration
	DefaultCategory string
	ReadingWPM      int
}

// AnalysisResult is the sanitized output of one analysis
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Language    string   `json:"language"`
	Sentiment   string   `json:"sentiment"`
	ReadingTime int      `json:"reading_time"`
	Failed      bool     `json:"failed"`
	Error       string   `json:"error,omitempty"`
}

// AnalyzerService classifies and summarizes scraped content
type AnalyzerService interface {
	// Analyze never fails; on any problem it returns a heuristic result with Failed set
	Analyze(ctx context.Context, content *ScrapedContent, categories []string) *AnalysisResult
	TestConnection(ctx context.Context) bool
	UpdateCategories(categories []string)
	UpdateConfig(cfg AIConfig)
	Config() AIConfig
}

// AnalyzerServiceImpl implements AnalyzerService over a Completer
type AnalyzerServiceImpl struct {
	mu           sync.RWMutex
	cfg          AIConfig
	categories   []string
	newCompleter CompleterFactory
	log          logrus.FieldLogger
}

// NewAnalyzerService creates an analyzer. A nil factory uses NewCompleter.
func NewAnalyzerService(cfg AIConfig, categories []string, factory CompleterFactory, logger logrus.FieldLogger) AnalyzerService {
	if factory == nil {
		factory = NewCompleter
	}
	return &AnalyzerServiceImpl{
		cfg:          normalizeAIConfig(cfg),
		categories:   append([]string(nil), categories...),
		newCompleter: factory,
		log:          logger.WithField("component", "analyzer"),
	}
}

func normalizeAIConfig(cfg AIConfig) AIConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAnalyzerTimeout
	}
	if cfg.ReadingWPM <= 0 {
		cfg.ReadingWPM = utils.DefaultReadingWPM
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		cfg.Temperature = defaultTemperature
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return cfg
}

func (s *AnalyzerServiceImpl) UpdateCategories(categories []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]string(nil), categories...)
}

func (s *AnalyzerServiceImpl) UpdateConfig(cfg AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = normalizeAIConfig(cfg)
}

func (s *AnalyzerServiceImpl) Config() AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *AnalyzerServiceImpl) snapshot() (AIConfig, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, append([]string(nil), s.categories...)
}

// Analyze asks the model for a summary, category and tags, then sanitizes the answer
func (s *AnalyzerServiceImpl) Analyze(ctx context.Context, content *ScrapedContent, categories []string) *AnalysisResult {
	cfg, known := s.snapshot()
	if len(categories) == 0 {
		categories = known
	}
	if content == nil {
		content = &ScrapedContent{}
	}
	log := s.log.WithField("url", content.URL)

	completer, err := s.newCompleter(cfg)
	if err != nil {
		reason := "completion"
		if errors.Is(err, ErrAINotConfigured) {
			reason = "not_configured"
		}
		return s.fallback(log, content, categories, cfg, reason, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	reply, err := completer.Complete(callCtx, CompletionRequest{
		System:      "You are a content analyst. You answer with a single JSON object and nothing else.",
		Prompt:      BuildAnalysisPrompt(content, categories),
		Temperature: cfg.Temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		reason := "completion"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		return s.fallback(log, content, categories, cfg, reason, err)
	}

	raw, err := ParseAnalysis(reply)
	if err != nil {
		return s.fallback(log, content, categories, cfg, "parse", err)
	}

	return sanitizeAnalysis(raw, content, categories, cfg)
}

func (s *AnalyzerServiceImpl) fallback(log logrus.FieldLogger, content *ScrapedContent, categories []string, cfg AIConfig, reason string, err error) *AnalysisResult {
	log.WithError(err).WithField("reason", reason).Warn("AI analysis failed, using heuristic fallback")
	analyzerFallbackTotal.WithLabelValues(reason).Inc()
	return HeuristicAnalysis(content, categories, cfg, err)
}

// TestConnection sends a trivial prompt and reports whether the provider answered
func (s *AnalyzerServiceImpl) TestConnection(ctx context.Context) bool {
	cfg, _ := s.snapshot()
	completer, err := s.newCompleter(cfg)
	if err != nil {
		s.log.WithError(err).Warn("AI connection test skipped")
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	reply, err := completer.Complete(callCtx, CompletionRequest{
		Prompt:      "Reply with the single word OK.",
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		s.log.WithError(err).Warn("AI connection test failed")
		return false
	}
	return strings.TrimSpace(reply) != ""
}

// BuildAnalysisPrompt renders the analysis prompt, truncating the page content
// so the whole prompt stays within maxPromptChars characters.
func BuildAnalysisPrompt(content *ScrapedContent, categories []string) string {
	var head strings.Builder
	head.WriteString("Analyze the following web page and answer in JSON only.\n\n")
	fmt.Fprintf(&head, "Title: %s\n", content.Title)
	fmt.Fprintf(&head, "URL: %s\n", content.URL)
	fmt.Fprintf(&head, "Description: %s\n", utils.TruncateRunes(content.Description, 1000))
	head.WriteString("\nAllowed categories: ")
	if len(categories) > 0 {
		head.WriteString(strings.Join(categories, ", "))
	} else {
		head.WriteString("(any)")
	}

	tail := "\n\nReturn exactly this JSON object:\n" +
		`{"summary": "<at most 500 characters>", "category": "<one of the allowed categories>", ` +
		`"tags": ["<up to 10 short tags>"], "language": "<ISO 639-1 code>", ` +
		`"sentiment": "positive|neutral|negative", "reading_time": <minutes as integer>}` + "\n"

	const contentLabel = "\n\nContent:\n"
	budget := maxPromptChars - runeLen(head.String()) - runeLen(contentLabel) - runeLen(tail)
	body := ""
	if budget > 0 {
		body = utils.TruncateRunes(content.Content, budget)
	}
	prompt := head.String() + contentLabel + body + tail
	if runeLen(prompt) > maxPromptChars {
		prompt = utils.TruncateRunes(prompt, maxPromptChars)
	}
	return prompt
}

func runeLen(s string) int {
	return len([]rune(s))
}

// rawAnalysis is the model answer before sanitizing; fields are loosely typed
type rawAnalysis struct {
	Summary     string          `json:"summary"`
	Category    string          `json:"category"`
	Tags        json.RawMessage `json:"tags"`
	Language    string          `json:"language"`
	Sentiment   string          `json:"sentiment"`
	ReadingTime json.RawMessage `json:"reading_time"`
}

var errNoJSONObject = errors.New("no json object in model output")

// ParseAnalysis decodes the model reply directly, or from the first balanced {...} in it
func ParseAnalysis(reply string) (*rawAnalysis, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, errNoJSONObject
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(reply), &raw); err == nil {
		return &raw, nil
	}

	obj := firstJSONObject(reply)
	if obj == "" {
		return nil, errNoJSONObject
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return &raw, nil
}

// firstJSONObject returns the first balanced {...} substring, honoring string literals
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}

func sanitizeAnalysis(raw *rawAnalysis, content *ScrapedContent, categories []string, cfg AIConfig) *AnalysisResult {
	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = strings.TrimSpace(content.Description)
	}

	lang := strings.ToLower(strings.TrimSpace(raw.Language))
	if lang == "" {
		lang = DetectLanguage(content.Title + " " + content.Description + " " + content.Content)
	}

	return &AnalysisResult{
		Summary:     utils.TruncateRunes(summary, utils.MaxSummaryLength),
		Category:    MatchCategory(raw.Category, categories, cfg.DefaultCategory),
		Tags:        capTags(decodeTags(raw.Tags), utils.MaxAnalyzerTags),
		Language:    lang,
		Sentiment:   normalizeSentiment(raw.Sentiment),
		ReadingTime: readingTime(decodeInt(raw.ReadingTime), content.WordCount, cfg.ReadingWPM),
	}
}

// MatchCategory returns the candidate equal to category ignoring case, or the fallback
func MatchCategory(category string, candidates []string, fallback string) string {
	category = strings.TrimSpace(category)
	if category != "" {
		for _, c := range candidates {
			if strings.EqualFold(c, category) {
				return c
			}
		}
		if len(candidates) == 0 {
			return category
		}
	}
	return fallbackCategory(candidates, fallback)
}

func fallbackCategory(candidates []string, fallback string) string {
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.FieldsFunc(joined, func(r rune) bool { return r == ',' || r == '，' || r == ';' })
	}
	return nil
}

func decodeInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(math.Round(f))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

func capTags(tags []string, max int) []string {
	tags = models.NormalizeTags(tags)
	if len(tags) > max {
		tags = tags[:max]
	}
	return tags
}

func normalizeSentiment(v string) string {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v
	default:
		return SentimentNeutral
	}
}

// readingTime keeps a positive model estimate, otherwise derives ceil(words/wpm) with a floor of one minute
func readingTime(minutes, words, wpm int) int {
	if minutes > 0 {
		return minutes
	}
	if wpm <= 0 {
		wpm = utils.DefaultReadingWPM
	}
	est := int(math.Ceil(float64(words) / float64(wpm)))
	if est < 1 {
		est = 1
	}
	return est
}

// DetectLanguage reports zh when more than 30% of the letters are CJK, otherwise en
func DetectLanguage(text string) string {
	letters, cjk := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters > 0 && float64(cjk)/float64(letters) > 0.3 {
		return "zh"
	}
	return "en"
}

// categoryGroup maps a topic to the names a category for it is likely to carry
type categoryGroup struct {
	aliases  []string
	keywords []string
}

var categoryGroups = map[string]categoryGroup{
	"tech": {
		aliases:  []string{"tech", "technology", "programming", "development", "dev", "code", "software", "技术", "编程"},
		keywords: []string{"code", "programming", "software", "api", "developer", "golang", "python", "javascript", "rust", "kubernetes", "docker", "database", "github", "open source", "compiler", "framework", "编程", "代码", "开发"},
	},
	"ai": {
		aliases:  []string{"ai", "artificial intelligence", "machine learning", "ml", "人工智能"},
		keywords: []string{"llm", "gpt", "machine learning", "neural", "model", "openai", "anthropic", "transformer", "deep learning", "人工智能", "大模型"},
	},
	"design": {
		aliases:  []string{"design", "ui", "ux", "设计"},
		keywords: []string{"design", "typography", "figma", "ux", "ui", "color", "layout", "设计"},
	},
	"science": {
		aliases:  []string{"science", "research", "科学"},
		keywords: []string{"research", "paper", "study", "physics", "biology", "chemistry", "arxiv", "experiment", "研究", "论文"},
	},
	"business": {
		aliases:  []string{"business", "finance", "startup", "商业", "财经"},
		keywords: []string{"startup", "market", "revenue", "investor", "funding", "finance", "economy", "company", "商业", "融资"},
	},
	"news": {
		aliases:  []string{"news", "新闻", "资讯"},
		keywords: []string{"breaking", "report", "announced", "government", "election", "新闻"},
	},
	"video": {
		aliases:  []string{"video", "videos", "视频"},
		keywords: []string{"video", "watch", "episode", "视频"},
	},
	"tool": {
		aliases:  []string{"tool", "tools", "utility", "工具"},
		keywords: []string{"tool", "app", "extension", "plugin", "cli", "工具"},
	},
	"life": {
		aliases:  []string{"life", "lifestyle", "生活"},
		keywords: []string{"health", "travel", "food", "recipe", "fitness", "生活"},
	},
}

var domainHints = map[string]string{
	"github.com":            "tech",
	"gitlab.com":            "tech",
	"stackoverflow.com":     "tech",
	"dev.to":                "tech",
	"news.ycombinator.com":  "tech",
	"go.dev":                "tech",
	"pkg.go.dev":            "tech",
	"huggingface.co":        "ai",
	"openai.com":            "ai",
	"anthropic.com":         "ai",
	"arxiv.org":             "science",
	"nature.com":            "science",
	"dribbble.com":          "design",
	"behance.net":           "design",
	"figma.com":             "design",
	"youtube.com":           "video",
	"youtu.be":              "video",
	"vimeo.com":             "video",
	"bilibili.com":          "video",
	"bloomberg.com":         "business",
	"wsj.com":               "business",
	"reuters.com":           "news",
	"bbc.com":               "news",
	"nytimes.com":           "news",
	"producthunt.com":       "tool",
	"chromewebstore.google": "tool",
}

// HeuristicAnalysis derives a result locally when the model is unavailable
func HeuristicAnalysis(content *ScrapedContent, categories []string, cfg AIConfig, cause error) *AnalysisResult {
	text := content.Title + " " + content.Description + " " + content.Content
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	return &AnalysisResult{
		Summary:     utils.TruncateRunes(strings.TrimSpace(content.Description), utils.MaxSummaryLength),
		Category:    heuristicCategory(content, categories, cfg.DefaultCategory),
		Tags:        frequentWords(content.Title+" "+content.Description, heuristicTagCount),
		Language:    DetectLanguage(text),
		Sentiment:   SentimentNeutral,
		ReadingTime: readingTime(0, content.WordCount, cfg.ReadingWPM),
		Failed:      true,
		Error:       errText,
	}
}

func heuristicCategory(content *ScrapedContent, candidates []string, fallback string) string {
	domain := strings.ToLower(content.Domain)
	for host, group := range domainHints {
		if domain == host || strings.HasSuffix(domain, "."+host) {
			if c := candidateForGroup(group, candidates); c != "" {
				return c
			}
		}
	}

	haystack := strings.ToLower(content.Title + " " + content.Description)
	bestGroup, bestHits := "", 0
	groups := make([]string, 0, len(categoryGroups))
	for name := range categoryGroups {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	for _, name := range groups {
		hits := 0
		for _, kw := range categoryGroups[name].keywords {
			if strings.Contains(haystack, kw) {
				hits++
			}
		}
		if hits > bestHits && candidateForGroup(name, candidates) != "" {
			bestGroup, bestHits = name, hits
		}
	}
	if bestGroup != "" {
		return candidateForGroup(bestGroup, candidates)
	}
	return fallbackCategory(candidates, fallback)
}

func candidateForGroup(group string, candidates []string) string {
	for _, c := range candidates {
		lc := strings.ToLower(strings.TrimSpace(c))
		for _, alias := range categoryGroups[group].aliases {
			if lc == alias {
				return c
			}
		}
	}
	return ""
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true, "will": true,
	"your": true, "about": true, "there": true, "their": true, "what": true, "when": true,
	"which": true, "were": true, "been": true, "into": true, "more": true, "than": true,
	"they": true, "them": true, "then": true, "also": true, "just": true, "like": true,
	"some": true, "only": true, "other": true, "over": true, "such": true, "these": true,
	"those": true, "would": true, "could": true, "should": true, "because": true, "while": true,
	"where": true, "after": true, "before": true, "very": true, "here": true, "each": true,
	"most": true, "many": true, "much": true, "does": true, "make": true, "made": true,
	"using": true, "used": true, "http": true, "https": true, "www": true,
}

// frequentWords returns the n most frequent significant words, ties broken by first appearance
func frequentWords(text string, n int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	counts := make(map[string]int)
	first := make(map[string]int)
	for i, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 4 || stopWords[w] || isNumeric(w) {
			continue
		}
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}

	ranked := make([]string, 0, len(counts))
	for w := range counts {
		ranked = append(ranked, w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return first[ranked[i]] < first[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
