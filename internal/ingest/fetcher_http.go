package ingest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/david/bandi-sentinel/internal/logger"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPFetcher is a net/http fetcher with retries and charset decoding. Text
// bodies come back as UTF-8; binary bodies are passed through untouched.
type HTTPFetcher struct {
	Client         *http.Client
	UserAgent      string
	AcceptLanguage string
	MaxRetries     int
	Charset        string
	// Raw returns the body bytes as served, whatever the Content-Type says.
	Raw bool
	// BaseBackoff is the first retry delay; it doubles on each attempt.
	BaseBackoff time.Duration
}

func NewHTTPFetcher(cfg FetchConfig) *HTTPFetcher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	lang := cfg.AcceptLanguage
	if lang == "" {
		lang = "it-IT,it;q=0.9,en;q=0.5"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HTTPFetcher{
		Client: &http.Client{
			Timeout:       timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		UserAgent:      defaultUserAgent,
		AcceptLanguage: lang,
		MaxRetries:     cfg.MaxRetries,
		Charset:        cfg.Charset,
		BaseBackoff:    500 * time.Millisecond,
	}
}

// Fetch implements the Fetcher interface. Non-200 responses and transport
// failures come back as *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	var lastErr error

	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff plus jitter
			backoff := f.BaseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			logger.Log.Debugf("[fetch] retry %d/%d for %s", attempt, f.MaxRetries, rawURL)
			select {
			case <-ctx.Done():
				return nil, &FetchError{URL: rawURL, Err: ctx.Err()}
			case <-time.After(backoff + jitter):
			}
		}

		doc, retry, err := f.do(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, lastErr
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*FetchedDocument, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.AcceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, shouldRetry(err, 0), &FetchError{URL: rawURL, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, shouldRetry(nil, resp.StatusCode), &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	body := io.ReadCloser(resp.Body)
	if !f.Raw && isTextual(contentType) {
		body, err = decodeBody(resp.Body, contentType, f.Charset)
		if err != nil {
			resp.Body.Close()
			return nil, false, &FetchError{URL: rawURL, Err: fmt.Errorf("decode body: %w", err)}
		}
	}

	return &FetchedDocument{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   time.Now(),
		Headers:     resp.Header,
	}, false, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decodeBody converts the body to UTF-8. A forced charset wins over the
// Content-Type header; otherwise charset.NewReader sniffs meta tags.
func decodeBody(body io.ReadCloser, contentType, forced string) (io.ReadCloser, error) {
	if forced != "" {
		enc, _ := charset.Lookup(forced)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", forced)
		}
		return readCloser{Reader: enc.NewDecoder().Reader(body), Closer: body}, nil
	}
	r, err := charset.NewReader(body, contentType)
	if err != nil {
		return nil, err
	}
	return readCloser{Reader: r, Closer: body}, nil
}

// isTextual reports whether a Content-Type names markup or text. A missing or
// unparseable header counts as text, which is what listing pages send.
func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xml" ||
		strings.HasSuffix(mediaType, "+xml")
}

// checkRedirect limits redirects and blocks non-http schemes
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}
	return nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
