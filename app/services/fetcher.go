package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Fetch error constants
var (
	ErrInvalidURL   = errors.New("invalid url")
	ErrFetchTimeout = errors.New("fetch timed out")
	ErrFetchError   = errors.New("fetch failed")
)

// BrowserUserAgent is sent on every outbound page fetch
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const maxBodyBytes = 8 << 20

// FetchResult is the raw response of a page fetch
type FetchResult struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher retrieves the body of a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// HTTPFetcher fetches pages with net/http
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher bounded by timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch issues a GET with a browser user agent
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/*;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchError, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchError, err)
	}

	return &FetchResult{
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// BrowserFetcher renders pages in a headless browser for script-heavy sites.
// It falls back to the wrapped fetcher when the browser is unavailable.
type BrowserFetcher struct {
	log      logrus.FieldLogger
	fallback Fetcher
	timeout  time.Duration
	bin      string
}

// NewBrowserFetcher creates a rod-backed fetcher. bin may be empty to look up a local browser.
func NewBrowserFetcher(logger logrus.FieldLogger, fallback Fetcher, timeout time.Duration, bin string) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		log:      logger.WithField("component", "browser_fetcher"),
		fallback: fallback,
		timeout:  timeout,
		bin:      bin,
	}
}

// Fetch loads the page, waits for it to settle and returns the rendered HTML
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	res, err := f.render(ctx, url)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrFetchTimeout) || f.fallback == nil {
		return nil, err
	}
	f.log.WithError(err).WithField("url", url).Warn("Browser fetch failed, falling back to plain HTTP")
	return f.fallback.Fetch(ctx, url)
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (res *FetchResult, err error) {
	path := f.bin
	if path == "" {
		var ok bool
		path, ok = launcher.LookPath()
		if !ok {
			return nil, fmt.Errorf("%w: browser executable not found", ErrFetchError)
		}
	}

	controlURL, err := launcher.New().Bin(path).Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %v", ErrFetchError, err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect browser: %v", ErrFetchError, err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			f.log.WithError(closeErr).Debug("Error closing rod browser instance")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: open page: %v", ErrFetchError, err)
	}

	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: BrowserUserAgent})
	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: wait load: %v", ErrFetchError, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read html: %v", ErrFetchError, err)
	}

	finalURL := url
	if info, infoErr := page.Info(); infoErr == nil && strings.TrimSpace(info.URL) != "" {
		finalURL = info.URL
	}

	return &FetchResult{
		FinalURL:    finalURL,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}
