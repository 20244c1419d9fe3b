package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/david/bandi-sentinel/internal/logger"
)

// CollyFetcher implements Fetcher interface using Colly. Charset detection is
// on by default, which the FILSE pages need (they are served as ISO-8859-1).
type CollyFetcher struct {
	UserAgent       string
	MaxRetries      int
	RequestTimeout  time.Duration
	IgnoreRobotsTxt bool
	MaxBodySize     int // bytes, 0 = unlimited
	DetectCharset   bool
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher(cfg FetchConfig) *CollyFetcher {
	f := &CollyFetcher{
		UserAgent:       defaultUserAgent,
		MaxRetries:      cfg.MaxRetries,
		RequestTimeout:  15 * time.Second,
		IgnoreRobotsTxt: true,
		MaxBodySize:     10 * 1024 * 1024, // 10MB
		DetectCharset:   true,
	}
	if cfg.TimeoutSeconds > 0 {
		f.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return f
}

// buildCollector creates a configured Colly collector.
func (f *CollyFetcher) buildCollector(allowedDomains []string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
	}

	if len(allowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(allowedDomains...))
	}

	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}

	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(f.RequestTimeout)
	return c
}

// Fetch implements the Fetcher interface, returning a FetchedDocument.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	c := f.buildCollector([]string{parsedURL.Hostname()})

	var (
		mu       sync.Mutex
		result   *FetchedDocument
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries && ctx.Err() == nil && shouldRetry(nil, r.StatusCode) {
			r.Request.Ctx.Put("retries", retries+1)
			logger.Log.Debugf("[colly] retry %d/%d for %s: %v", retries+1, f.MaxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			if rerr := r.Request.Retry(); rerr == nil {
				return
			}
		}
		mu.Lock()
		defer mu.Unlock()
		fetchErr = &FetchError{URL: targetURL, StatusCode: r.StatusCode, Err: err}
	})

	if ctx.Err() != nil {
		return nil, &FetchError{URL: targetURL, Err: ctx.Err()}
	}

	// Visit is synchronous for a non-async collector.
	if err := c.Visit(targetURL); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("visit failed: %w", err)}
	}

	mu.Lock()
	defer mu.Unlock()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("no response received")}
	}
	if result.StatusCode != 200 {
		return nil, &FetchError{URL: targetURL, StatusCode: result.StatusCode}
	}

	return result, nil
}
