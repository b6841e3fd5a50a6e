package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/magpie/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!DOCTYPE html>
<html lang="en-US">
<head>
  <title>Fallback title</title>
  <meta property="og:title" content="Understanding Go Channels">
  <meta name="description" content="A   deep dive
     into channel semantics.">
  <meta property="og:site_name" content="Gopher Weekly">
  <meta name="author" content="Jane Doe">
  <meta property="article:published_time" content="2024-03-01T09:30:00+02:00">
  <meta property="article:tag" content="go">
  <meta property="article:tag" content="Concurrency">
  <meta property="article:tag" content="GO">
</head>
<body>
  <nav class="menu"><a href="/">Home</a><a href="/about">About</a></nav>
  <div class="sidebar"><p>Subscribe to our newsletter for more posts like this one, every week.</p></div>
  <article class="post-content">
    <p>Channels are the pipes that connect concurrent goroutines, and you can send values into channels from one goroutine.</p>
    <p>Unbuffered channels block the sender until a receiver is ready, which gives you synchronization for free, at a cost.</p>
    <p>Buffered channels decouple the two sides, up to the buffer capacity, and they are useful for bounded work queues.</p>
  </article>
  <footer>Copyright 2024</footer>
  <script>var tracking = true;</script>
</body>
</html>`

func newTestExtractor(timeout time.Duration) ExtractorService {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewExtractorService(NewHTTPFetcher(timeout), 0, log)
}

func TestExtractorService_Article(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, articlePage)
	}))
	defer srv.Close()

	content, err := newTestExtractor(5*time.Second).Extract(context.Background(), srv.URL+"/posts/channels")
	require.NoError(t, err)

	assert.Equal(t, BrowserUserAgent, gotUA)
	assert.Equal(t, models.ContentTypeArticle, content.ContentType)
	assert.Equal(t, "Understanding Go Channels", content.Title)
	assert.Equal(t, "A deep dive into channel semantics.", content.Description)
	assert.Equal(t, "Gopher Weekly", content.SiteName)
	assert.Equal(t, "Jane Doe", content.Author)
	assert.Equal(t, "en", content.Language)
	assert.Equal(t, []string{"go", "Concurrency"}, content.Tags)
	require.NotNil(t, content.PublishDate)
	assert.True(t, content.PublishDate.Equal(time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)))

	assert.Contains(t, content.Content, "Channels are the pipes")
	assert.Contains(t, content.Content, "bounded work queues")
	assert.NotContains(t, content.Content, "newsletter")
	assert.NotContains(t, content.Content, "tracking")
	assert.NotContains(t, content.Content, "Copyright")
	assert.Equal(t, CountWords(content.Content), content.WordCount)
	assert.Greater(t, content.WordCount, 40)
}

func TestExtractorService_FallbacksAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bare":
			_, _ = io.WriteString(w, `<html><body><main>Short note.</main></body></html>`)
		case "/long":
			_, _ = io.WriteString(w, `<html><head><title>Long</title></head><body><article><p>`+
				strings.Repeat("word ", 5000)+`</p></article></body></html>`)
		case "/missing":
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	extractor := NewExtractorService(NewHTTPFetcher(5*time.Second), 200, log)
	ctx := context.Background()

	t.Run("TitleFallsBackToDomain", func(t *testing.T) {
		content, err := extractor.Extract(ctx, srv.URL+"/bare")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", content.Title)
		assert.Equal(t, "Short note.", content.Content)
	})

	t.Run("ContentIsCapped", func(t *testing.T) {
		content, err := extractor.Extract(ctx, srv.URL+"/long")
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(content.Content)), 203)
		assert.True(t, strings.HasSuffix(content.Content, "..."))
	})

	t.Run("HTTPErrorStatus", func(t *testing.T) {
		_, err := extractor.Extract(ctx, srv.URL+"/missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFetchError)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		_, err := extractor.Extract(ctx, "mailto:someone@example.com")
		assert.ErrorIs(t, err, ErrInvalidURL)
	})
}

func TestExtractorService_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestExtractor(50*time.Millisecond).Extract(context.Background(), srv.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchTimeout)
}

func TestExtractorService_Image(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 32))))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	content, err := newTestExtractor(5*time.Second).Extract(context.Background(), srv.URL+"/img/sunset%20photo.png")
	require.NoError(t, err)
	assert.Equal(t, models.ContentTypeImage, content.ContentType)
	assert.Equal(t, "sunset photo.png", content.Title)
	assert.Equal(t, 64, content.ImageWidth)
	assert.Equal(t, 32, content.ImageHeight)
	assert.Equal(t, "PNG image, 64x32", content.Description)
}

func TestClassifyContentType(t *testing.T) {
	tests := []struct {
		raw  string
		want models.ContentType
	}{
		{"https://www.youtube.com/watch?v=abc", models.ContentTypeVideo},
		{"https://m.bilibili.com/video/BV1", models.ContentTypeVideo},
		{"https://example.com/paper.PDF", models.ContentTypePDF},
		{"https://example.com/a/b.webp", models.ContentTypeImage},
		{"https://example.com/blog/post", models.ContentTypeArticle},
		{"https://notyoutube.com/watch", models.ContentTypeArticle},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ClassifyContentType(u))
		})
	}
}

func TestValidateURLAndDomain(t *testing.T) {
	u, err := ValidateURL("  https://WWW.Example.com/path  ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", DomainOf(u))

	for _, raw := range []string{"", "example.com", "ftp://example.com", "http://", "javascript:alert(1)"} {
		_, err := ValidateURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestCountWordsAndCleanText(t *testing.T) {
	assert.Equal(t, 4, CountWords("Hello, world! It's  fine."))
	assert.Equal(t, 0, CountWords(" ... !!! "))
	assert.Equal(t, 3, CountWords("Go 语言 rocks"))

	assert.Equal(t, "a b c", CleanText("  a \n\t b   c ", 0))
	assert.Equal(t, "alpha beta...", CleanText("alpha beta gamma delta", 13))
}
