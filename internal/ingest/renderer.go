package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeRenderer renders pages with a headless Chrome instance.
type ChromeRenderer struct {
	ExecPath  string        // empty = chromedp default lookup
	Settle    time.Duration // wait after the body is ready
	Timeout   time.Duration
	UserAgent string
}

func NewChromeRenderer(execPath string, settle, timeout time.Duration) *ChromeRenderer {
	if settle <= 0 {
		settle = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeRenderer{
		ExecPath:  execPath,
		Settle:    settle,
		Timeout:   timeout,
		UserAgent: defaultUserAgent,
	}
}

// Render navigates to url, waits for the body plus the settle delay and
// returns the outer HTML of the document.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.UserAgent),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, r.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("render: %w", err)}
	}
	return html, nil
}
