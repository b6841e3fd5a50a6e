package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
	"github.com/sirupsen/logrus"
)

const (
	feedItemLimit     = 50
	sitemapLinkLimit  = 50000
	regenerateTimeout = 30 * time.Second
)

// PublishedLinkLister is the read side the regenerator needs
type PublishedLinkLister interface {
	ListPublished(ctx context.Context, limit int) ([]*models.Link, error)
}

// SiteInfo describes the public site embedded in sitemap and feed
type SiteInfo struct {
	URL         string
	Title       string
	Description string
}

// RegeneratorService renders the sitemap and RSS feed from published links
type RegeneratorService interface {
	Regenerate(ctx context.Context) error
	UpdateSite(site SiteInfo)
}

type RegeneratorServiceImpl struct {
	mu    sync.RWMutex
	site  SiteInfo
	links PublishedLinkLister
	store ArtifactStore
	log   logrus.FieldLogger
}

func NewRegeneratorService(links PublishedLinkLister, store ArtifactStore, site SiteInfo, logger logrus.FieldLogger) RegeneratorService {
	return &RegeneratorServiceImpl{
		site:  site,
		links: links,
		store: store,
		log:   logger.WithField("component", "regenerator"),
	}
}

func (s *RegeneratorServiceImpl) UpdateSite(site SiteInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.site = site
}

// Regenerate rebuilds sitemap.xml and feed.xml and stores both
func (s *RegeneratorServiceImpl) Regenerate(ctx context.Context) error {
	s.mu.RLock()
	site := s.site
	s.mu.RUnlock()
	site.URL = strings.TrimRight(site.URL, "/")

	links, err := s.links.ListPublished(ctx, sitemapLinkLimit)
	if err != nil {
		regenerationTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("list published links: %w", err)
	}

	now := utils.UTCNow()
	sitemap, err := RenderSitemap(site, links)
	if err != nil {
		regenerationTotal.WithLabelValues("failed").Inc()
		return err
	}
	feedLinks := links
	if len(feedLinks) > feedItemLimit {
		feedLinks = feedLinks[:feedItemLimit]
	}
	feed, err := RenderFeed(site, feedLinks, now)
	if err != nil {
		regenerationTotal.WithLabelValues("failed").Inc()
		return err
	}

	for _, a := range []*Artifact{
		{Name: ArtifactSitemap, ContentType: "application/xml; charset=utf-8", Body: sitemap, GeneratedAt: now},
		{Name: ArtifactFeed, ContentType: "application/rss+xml; charset=utf-8", Body: feed, GeneratedAt: now},
	} {
		if err := s.store.Put(ctx, a); err != nil {
			regenerationTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("store %s: %w", a.Name, err)
		}
	}

	regenerationTotal.WithLabelValues("success").Inc()
	s.log.WithField("links", len(links)).Debug("Static artifacts regenerated")
	return nil
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
}

// RenderSitemap lists the home page and one entry per published link
func RenderSitemap(site SiteInfo, links []*models.Link) ([]byte, error) {
	set := sitemapURLSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{Loc: site.URL + "/", ChangeFreq: "daily"})
	for _, l := range links {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     linkPage(site, l),
			LastMod: l.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}
	return marshalXML(set)
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        rssGUID  `xml:"guid"`
	Description string   `xml:"description,omitempty"`
	Categories  []string `xml:"category,omitempty"`
	PubDate     string   `xml:"pubDate,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// RenderFeed produces an RSS 2.0 document; items keep the order of links
func RenderFeed(site SiteInfo, links []*models.Link, now time.Time) ([]byte, error) {
	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:         site.Title,
			Link:          site.URL + "/",
			Description:   site.Description,
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
		},
	}
	for _, l := range links {
		item := rssItem{
			Title:       utils.FirstNonEmpty(l.Title, l.URL),
			Link:        l.URL,
			GUID:        rssGUID{IsPermaLink: false, Value: linkPage(site, l)},
			Description: l.EffectiveDescription(),
		}
		if c := l.EffectiveCategory(); c != "" {
			item.Categories = append(item.Categories, c)
		}
		if l.PublishedAt != nil {
			item.PubDate = l.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}
	return marshalXML(doc)
}

func linkPage(site SiteInfo, l *models.Link) string {
	return fmt.Sprintf("%s/links/%d", site.URL, l.ID)
}

func marshalXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Notifier triggers a best-effort regeneration after a publishing change
type Notifier interface {
	Notify(reason string)
}

// AsyncNotifier runs each regeneration in its own goroutine and only logs failures
type AsyncNotifier struct {
	regen   RegeneratorService
	log     logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncNotifier(regen RegeneratorService, logger logrus.FieldLogger) *AsyncNotifier {
	return &AsyncNotifier{
		regen:   regen,
		log:     logger.WithField("component", "regeneration_notifier"),
		timeout: regenerateTimeout,
	}
}

func (n *AsyncNotifier) Notify(reason string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.WithField("reason", reason).Errorf("Regeneration panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.regen.Regenerate(ctx); err != nil {
			n.log.WithError(err).WithField("reason", reason).Warn("Regeneration failed")
		}
	}()
}

// Wait blocks until in-flight regenerations finish
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}
