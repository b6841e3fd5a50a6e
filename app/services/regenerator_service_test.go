package services

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/amirphl/magpie/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeLister struct {
	links []*models.Link
	err   error
}

func (f *fakeLister) ListPublished(_ context.Context, limit int) ([]*models.Link, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.links) > limit {
		return f.links[:limit], nil
	}
	return f.links, nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func publishedLink(id uint, title, category string, at time.Time) *models.Link {
	l := &models.Link{
		ID:         id,
		URL:        "https://example.com/" + title,
		Title:      title,
		AISummary:  title + " summary",
		AICategory: category,
		AITags:     datatypes.NewJSONSlice([]string{"go"}),
	}
	l.Publish(at)
	l.UpdatedAt = at
	return l
}

func TestArtifactStores(t *testing.T) {
	badgerStore, err := NewBadgerArtifactStore(t.TempDir(), discardLogger())
	require.NoError(t, err)
	defer badgerStore.Close()

	stores := map[string]ArtifactStore{
		"memory": NewMemoryArtifactStore(),
		"badger": badgerStore,
	}
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, ArtifactFeed)
			assert.ErrorIs(t, err, ErrArtifactNotFound)

			body := []byte("<rss/>")
			require.NoError(t, store.Put(ctx, &Artifact{Name: ArtifactFeed, ContentType: "application/rss+xml", Body: body, GeneratedAt: at}))
			body[0] = 'X'

			got, err := store.Get(ctx, ArtifactFeed)
			require.NoError(t, err)
			assert.Equal(t, "<rss/>", string(got.Body))
			assert.Equal(t, "application/rss+xml", got.ContentType)
			assert.True(t, at.Equal(got.GeneratedAt))

			require.NoError(t, store.Put(ctx, &Artifact{Name: ArtifactFeed, Body: []byte("v2"), GeneratedAt: at}))
			got, err = store.Get(ctx, ArtifactFeed)
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got.Body))
		})
	}
}

func TestRenderSitemap(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	out, err := RenderSitemap(SiteInfo{URL: "https://links.example.com"}, []*models.Link{publishedLink(7, "a", "Tech", at)})
	require.NoError(t, err)

	var set sitemapURLSet
	require.NoError(t, xml.Unmarshal(out, &set))
	require.Len(t, set.URLs, 2)
	assert.Equal(t, "https://links.example.com/", set.URLs[0].Loc)
	assert.Equal(t, "https://links.example.com/links/7", set.URLs[1].Loc)
	assert.Equal(t, "2024-02-03", set.URLs[1].LastMod)
}

func TestRenderFeed(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	untitled := publishedLink(2, "", "", at)
	untitled.Title = ""

	out, err := RenderFeed(SiteInfo{URL: "https://links.example.com", Title: "Links & <things>"}, []*models.Link{
		publishedLink(1, "first", "Tech", at),
		untitled,
	}, at)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Links &amp; &lt;things&gt;")

	var doc rssDocument
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "2.0", doc.Version)
	require.Len(t, doc.Channel.Items, 2)

	first := doc.Channel.Items[0]
	assert.Equal(t, "first", first.Title)
	assert.Equal(t, "first summary", first.Description)
	assert.Equal(t, []string{"Tech"}, first.Categories)
	assert.Equal(t, "https://links.example.com/links/1", first.GUID.Value)
	assert.Equal(t, at.Format(time.RFC1123Z), first.PubDate)

	assert.Equal(t, "https://example.com/", doc.Channel.Items[1].Title)
	assert.Empty(t, doc.Channel.Items[1].Categories)
}

func TestRegeneratorService(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	links := make([]*models.Link, 0, feedItemLimit+5)
	for i := 0; i < feedItemLimit+5; i++ {
		links = append(links, publishedLink(uint(i+1), "post", "Tech", at))
	}
	lister := &fakeLister{links: links}
	store := NewMemoryArtifactStore()
	regen := NewRegeneratorService(lister, store, SiteInfo{URL: "https://old.example.com/"}, discardLogger())

	regen.UpdateSite(SiteInfo{URL: "https://links.example.com/", Title: "Links"})
	require.NoError(t, regen.Regenerate(ctx))

	sitemap, err := store.Get(ctx, ArtifactSitemap)
	require.NoError(t, err)
	assert.Contains(t, sitemap.ContentType, "application/xml")
	var set sitemapURLSet
	require.NoError(t, xml.Unmarshal(sitemap.Body, &set))
	assert.Len(t, set.URLs, len(links)+1)
	assert.Equal(t, "https://links.example.com/links/1", set.URLs[1].Loc)

	feed, err := store.Get(ctx, ArtifactFeed)
	require.NoError(t, err)
	var doc rssDocument
	require.NoError(t, xml.Unmarshal(feed.Body, &doc))
	assert.Len(t, doc.Channel.Items, feedItemLimit)
	assert.Equal(t, "Links", doc.Channel.Title)

	lister.err = errors.New("db down")
	assert.Error(t, regen.Regenerate(ctx))
}

type countingRegenerator struct {
	calls chan string
	err   error
}

func (c *countingRegenerator) Regenerate(context.Context) error {
	c.calls <- "run"
	return c.err
}

func (c *countingRegenerator) UpdateSite(SiteInfo) {}

func TestAsyncNotifier(t *testing.T) {
	regen := &countingRegenerator{calls: make(chan string, 3), err: errors.New("ignored")}
	notifier := NewAsyncNotifier(regen, discardLogger())

	notifier.Notify("link_published")
	notifier.Notify("link_deleted")
	notifier.Notify("link_batch")
	notifier.Wait()

	assert.Len(t, regen.calls, 3)
}
