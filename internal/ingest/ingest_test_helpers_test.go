package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// stubFetcher serves canned bodies keyed by URL.
type stubFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	s.calls = append(s.calls, url)
	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: 404}
	}
	return &FetchedDocument{
		URL:         url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        io.NopCloser(strings.NewReader(body)),
		FetchedAt:   time.Now(),
	}, nil
}

type stubRenderer struct {
	html string
	err  error
}

func (r stubRenderer) Render(context.Context, string) (string, error) {
	return r.html, r.err
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func depsFor(f Fetcher) AdapterDeps {
	return AdapterDeps{
		NewFetcher: func(FetchConfig) Fetcher { return f },
		Now:        fixedNow,
	}
}

func page(body string) string {
	return fmt.Sprintf("<html><head><title>t</title></head><body>%s</body></html>", body)
}

