package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

// ScrapedContent is everything the extractor learned about a URL
type ScrapedContent struct {
	URL         string             `json:"url"`
	Domain      string             `json:"domain"`
	ContentType models.ContentType `json:"content_type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Content     string             `json:"content"`
	Author      string             `json:"author,omitempty"`
	PublishDate *time.Time         `json:"publish_date,omitempty"`
	SiteName    string             `json:"site_name,omitempty"`
	Language    string             `json:"language,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	WordCount   int                `json:"word_count"`
	ImageWidth  int                `json:"image_width,omitempty"`
	ImageHeight int                `json:"image_height,omitempty"`
}

// ExtractorService turns a URL into ScrapedContent
type ExtractorService interface {
	Extract(ctx context.Context, rawURL string) (*ScrapedContent, error)
}

// ExtractorServiceImpl implements ExtractorService on top of a Fetcher
type ExtractorServiceImpl struct {
	fetcher   Fetcher
	maxLength int
	log       logrus.FieldLogger
}

// NewExtractorService creates a new extractor. maxLength <= 0 uses the default cap.
func NewExtractorService(fetcher Fetcher, maxLength int, logger logrus.FieldLogger) ExtractorService {
	if maxLength <= 0 {
		maxLength = utils.MaxContentLength
	}
	return &ExtractorServiceImpl{
		fetcher:   fetcher,
		maxLength: maxLength,
		log:       logger.WithField("component", "extractor"),
	}
}

var videoHosts = []string{"youtube.com", "youtu.be", "vimeo.com", "bilibili.com"}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".bmp": true, ".ico": true, ".avif": true,
}

// Extract fetches and parses the page behind rawURL
func (s *ExtractorServiceImpl) Extract(ctx context.Context, rawURL string) (*ScrapedContent, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("url", rawURL)
	content := &ScrapedContent{
		URL:         rawURL,
		Domain:      DomainOf(u),
		ContentType: ClassifyContentType(u),
	}

	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		extractorFailuresTotal.WithLabelValues(failureKind(err)).Inc()
		return nil, err
	}

	switch content.ContentType {
	case models.ContentTypeImage:
		s.fillImage(content, u, res.Body)
		return content, nil
	case models.ContentTypePDF:
		content.Title = fileTitle(u)
		return content, nil
	}

	doc, err := html.Parse(bytes.NewReader(res.Body))
	if err != nil {
		extractorFailuresTotal.WithLabelValues("parse").Inc()
		return nil, fmt.Errorf("%w: parse html: %v", ErrFetchError, err)
	}

	meta := collectMeta(doc)
	content.Title = extractTitle(doc, meta)
	content.Description = s.clean(extractDescription(doc, meta), 500)
	content.Author = extractAuthor(doc, meta)
	content.PublishDate = extractPublishDate(doc, meta)
	content.SiteName = firstMeta(meta, "og:site_name", "twitter:site", "application-name")
	content.Language = extractLanguage(doc, meta)
	content.Tags = extractTags(meta)

	text := readabilityContent(doc)
	if text == "" {
		log.Debug("Readability found no candidate, using container fallback")
		text = fallbackContent(doc)
	}
	content.Content = s.clean(text, s.maxLength)
	content.WordCount = CountWords(content.Content)

	if content.Title == "" {
		content.Title = content.Domain
	}
	return content, nil
}

func (s *ExtractorServiceImpl) fillImage(content *ScrapedContent, u *url.URL, body []byte) {
	content.Title = fileTitle(u)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).WithField("url", content.URL).Debug("Could not decode image header")
		return
	}
	content.ImageWidth = cfg.Width
	content.ImageHeight = cfg.Height
	content.Description = fmt.Sprintf("%s image, %dx%d", strings.ToUpper(format), cfg.Width, cfg.Height)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	default:
		return "fetch"
	}
}

func (s *ExtractorServiceImpl) clean(text string, max int) string {
	return CleanText(text, max)
}

// ValidateURL accepts absolute http(s) URLs with a host
func ValidateURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// DomainOf returns the lowercase host without a leading www.
func DomainOf(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ClassifyContentType maps a URL to video, pdf, image or article
func ClassifyContentType(u *url.URL) models.ContentType {
	host := DomainOf(u)
	for _, v := range videoHosts {
		if host == v || strings.HasSuffix(host, "."+v) {
			return models.ContentTypeVideo
		}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == ".pdf" {
		return models.ContentTypePDF
	}
	if imageExtensions[ext] {
		return models.ContentTypeImage
	}
	return models.ContentTypeArticle
}

// CleanText collapses whitespace and caps the result at max runes on a word boundary
func CleanText(text string, max int) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if i := strings.LastIndexAny(cut, " \t\n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

// CountWords strips punctuation (CJK characters are kept) and counts whitespace-separated tokens
func CountWords(text string) int {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', isCJK(r):
			b.WriteRune(r)
		}
	}
	return len(strings.Fields(b.String()))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

func fileTitle(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return DomainOf(u)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// collectMeta indexes <meta> tags by lowercase property or name; the first value wins.
// article:tag values are accumulated under "article:tag".
func collectMeta(doc *html.Node) map[string][]string {
	meta := make(map[string][]string)
	forEach(doc, func(n *html.Node) bool {
		if !isElement(n, "meta") {
			return true
		}
		content := strings.TrimSpace(attr(n, "content"))
		if content == "" {
			return false
		}
		for _, key := range []string{attr(n, "property"), attr(n, "name"), attr(n, "itemprop"), attr(n, "http-equiv")} {
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "" {
				continue
			}
			meta[key] = append(meta[key], content)
		}
		return false
	})
	return meta
}

func firstMeta(meta map[string][]string, keys ...string) string {
	for _, k := range keys {
		if vals := meta[k]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
			return strings.TrimSpace(vals[0])
		}
	}
	return ""
}

func extractTitle(doc *html.Node, meta map[string][]string) string {
	if t := firstMeta(meta, "og:title", "twitter:title", "title"); t != "" {
		return t
	}
	if n := findFirst(doc, func(n *html.Node) bool { return isElement(n, "title") }); n != nil {
		if t := nodeText(n); t != "" {
			return t
		}
	}
	if n := findFirst(doc, func(n *html.Node) bool { return isElement(n, "h1") }); n != nil {
		return nodeText(n)
	}
	return ""
}

func extractDescription(doc *html.Node, meta map[string][]string) string {
	if d := firstMeta(meta, "og:description", "twitter:description", "description"); d != "" {
		return d
	}
	var desc string
	forEach(doc, func(n *html.Node) bool {
		if desc != "" {
			return false
		}
		if n.Type == html.ElementNode && boilerplateTags[n.Data] {
			return false
		}
		if isElement(n, "p") {
			if t := nodeText(n); len([]rune(t)) >= 40 {
				desc = t
			}
			return false
		}
		return true
	})
	return desc
}

func extractAuthor(doc *html.Node, meta map[string][]string) string {
	if a := firstMeta(meta, "article:author", "og:article:author", "twitter:creator", "author"); a != "" {
		return a
	}
	n := findFirst(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		return hasClass(n, "author") || hasClass(n, "byline") || attr(n, "rel") == "author" || attr(n, "itemprop") == "author"
	})
	if n != nil {
		return utils.TruncateRunes(nodeText(n), 255)
	}
	return ""
}

var publishDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func parsePublishDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range publishDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func extractPublishDate(doc *html.Node, meta map[string][]string) *time.Time {
	if v := firstMeta(meta, "article:published_time", "og:published_time", "twitter:data1:published", "date", "pubdate", "publishdate", "datepublished"); v != "" {
		if t := parsePublishDate(v); t != nil {
			return t
		}
	}
	var out *time.Time
	forEach(doc, func(n *html.Node) bool {
		if out != nil {
			return false
		}
		if isElement(n, "time") {
			if t := parsePublishDate(attr(n, "datetime")); t != nil {
				out = t
			}
			return false
		}
		return true
	})
	return out
}

func extractLanguage(doc *html.Node, meta map[string][]string) string {
	lang := firstMeta(meta, "og:locale", "language", "content-language")
	if lang == "" {
		if n := findFirst(doc, func(n *html.Node) bool { return isElement(n, "html") }); n != nil {
			lang = attr(n, "lang")
		}
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func extractTags(meta map[string][]string) []string {
	if tags := meta["article:tag"]; len(tags) > 0 {
		return models.NormalizeTags(tags)
	}
	if kw := firstMeta(meta, "keywords", "news_keywords"); kw != "" {
		parts := strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == '，' || r == ';' })
		return models.NormalizeTags(parts)
	}
	return nil
}
