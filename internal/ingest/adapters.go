package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/models"
)

// extractFunc turns a parsed page into candidates. Common fields (source,
// authority, category, discovery time) are filled in by the caller.
type extractFunc func(doc *goquery.Document, base *url.URL, cfg SourceConfig) ([]models.Announcement, error)

// AdapterDeps carries the collaborators adapters are built with.
type AdapterDeps struct {
	// NewFetcher builds the fetcher for a source. Nil selects the engine
	// named in the source's fetch config.
	NewFetcher func(FetchConfig) Fetcher
	Renderer   Renderer
	Now        func() time.Time
}

// AdapterFactory builds a SourceAdapter for one registry entry.
type AdapterFactory func(cfg SourceConfig, deps AdapterDeps) (SourceAdapter, error)

var adapterFactories = map[string]AdapterFactory{
	KindStaticList:         newFetchedAdapter(extractStaticList),
	KindDatedLines:         newFetchedAdapter(extractDatedLines),
	KindLinkPattern:        newFetchedAdapter(extractLinkPattern),
	KindRenderedContainers: newRenderedAdapter,
}

// RegisterAdapterKind adds or replaces the factory for a kind.
func RegisterAdapterKind(kind string, f AdapterFactory) {
	adapterFactories[kind] = f
}

// BuildAdapters returns one adapter per enabled source, in registry order.
func BuildAdapters(reg *Registry, deps AdapterDeps) ([]SourceAdapter, error) {
	var out []SourceAdapter
	for _, cfg := range reg.Enabled() {
		factory, ok := adapterFactories[cfg.Kind]
		if !ok {
			return nil, fmt.Errorf("adapter kind not found: %s", cfg.Kind)
		}
		a, err := factory(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// DefaultFetcher picks the fetch engine named in cfg.
func DefaultFetcher(cfg FetchConfig) Fetcher {
	if cfg.Engine == "colly" {
		return NewCollyFetcher(cfg)
	}
	return NewHTTPFetcher(cfg)
}

// siteAdapter is the shared Scrape implementation: load a DOM, extract,
// stamp common fields, de-duplicate by url.
type siteAdapter struct {
	cfg     SourceConfig
	base    *url.URL
	load    func(ctx context.Context) (*goquery.Document, error)
	extract extractFunc
	now     func() time.Time
}

func newFetchedAdapter(extract extractFunc) AdapterFactory {
	return func(cfg SourceConfig, deps AdapterDeps) (SourceAdapter, error) {
		base, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url: %w", err)
		}
		newFetcher := deps.NewFetcher
		if newFetcher == nil {
			newFetcher = DefaultFetcher
		}
		fetcher := newFetcher(cfg.Fetch)

		a := &siteAdapter{cfg: cfg, base: base, extract: extract, now: nowFunc(deps)}
		a.load = func(ctx context.Context) (*goquery.Document, error) {
			return fetchDocument(ctx, fetcher, cfg)
		}
		return a, nil
	}
}

func newRenderedAdapter(cfg SourceConfig, deps AdapterDeps) (SourceAdapter, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("kind %s needs a renderer", cfg.Kind)
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	a := &siteAdapter{cfg: cfg, base: base, extract: extractRenderedContainers, now: nowFunc(deps)}
	a.load = func(ctx context.Context) (*goquery.Document, error) {
		markup, err := deps.Renderer.Render(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return nil, &ParseError{Source: cfg.ID, Err: err}
		}
		return doc, nil
	}
	return a, nil
}

func nowFunc(deps AdapterDeps) func() time.Time {
	if deps.Now != nil {
		return deps.Now
	}
	return time.Now
}

func (a *siteAdapter) Name() string { return a.cfg.ID }

// Scrape implements SourceAdapter. Panics inside extraction become a
// ParseError and the partial result is discarded.
func (a *siteAdapter) Scrape(ctx context.Context) (out []models.Announcement, err error) {
	log := logger.Source(a.cfg.ID)

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &ParseError{Source: a.cfg.ID, Err: fmt.Errorf("panic during extraction: %v", r)}
		}
		if err != nil {
			log.WithError(err).Warnf("[%s] scrape failed", a.cfg.ID)
		}
	}()

	log.Infof("[%s] scanning %s", a.cfg.ID, a.cfg.URL)

	doc, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Find("body").Text()) == "" {
		return nil, &ParseError{Source: a.cfg.ID, Err: fmt.Errorf("page has no body text")}
	}

	items, err := a.extract(doc, a.base, a.cfg)
	if err != nil {
		return nil, &ParseError{Source: a.cfg.ID, Err: err}
	}

	now := a.now()
	seen := make(map[string]struct{}, len(items))
	out = make([]models.Announcement, 0, len(items))
	for _, it := range items {
		if it.URL == "" || it.Title == "" {
			continue
		}
		if _, dup := seen[it.URL]; dup {
			continue
		}
		seen[it.URL] = struct{}{}

		it.Source = a.cfg.ID
		if it.IssuingAuthority == "" {
			it.IssuingAuthority = a.cfg.Authority
		}
		if it.Category == "" {
			it.Category = a.cfg.Category
		}
		it.RawText = sanitizeRawText(it.RawText)
		it.DiscoveredAt = now
		out = append(out, it)
		log.Debugf("[%s] candidate %s", a.cfg.ID, TruncateText(it.Title, 70))
	}

	log.Infof("[%s] %d candidates extracted", a.cfg.ID, len(out))
	return out, nil
}

// fetchDocument fetches a listing page and parses it.
func fetchDocument(ctx context.Context, fetcher Fetcher, cfg SourceConfig) (*goquery.Document, error) {
	doc, err := fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	gq, err := goquery.NewDocumentFromReader(doc.Body)
	if err != nil {
		return nil, &ParseError{Source: cfg.ID, Err: err}
	}
	return gq, nil
}

// textLines returns the trimmed, non-empty text nodes of the document in
// document order, skipping script and style content.
func textLines(doc *goquery.Document) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			for _, raw := range strings.Split(n.Data, "\n") {
				if line := normalizeSpace(raw); line != "" {
					lines = append(lines, line)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return lines
}

// collectPDFLinks returns absolute links to PDF files in sel, anchors of sel
// itself included.
func collectPDFLinks(sel *goquery.Selection, base *url.URL) []string {
	var out []string
	sel.Filter("a[href]").AddSelection(sel.Find("a[href]")).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		hrefLower := strings.ToLower(href)
		if !strings.Contains(hrefLower, ".pdf") {
			return
		}
		if abs := absoluteURL(base, href); abs != "" {
			out = mergeUniqueFold(out, []string{abs})
		}
	})
	return out
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
