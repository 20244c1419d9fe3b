package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/bandi-sentinel/internal/models"
)

// extractLinkPattern keeps anchors whose href matches the source's pattern.
// The anchor's parent supplies the raw text, the deadline and any PDF links.
func extractLinkPattern(doc *goquery.Document, base *url.URL, cfg SourceConfig) ([]models.Announcement, error) {
	pattern, err := regexp.Compile(cfg.LinkPattern)
	if err != nil {
		return nil, err
	}
	minTitle := orDefault(cfg.MinTitle, 10)

	skip := make(map[string]struct{}, len(cfg.SkipTitles))
	for _, t := range cfg.SkipTitles {
		skip[strings.ToLower(normalizeSpace(t))] = struct{}{}
	}

	var out []models.Announcement
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !pattern.MatchString(href) {
			return
		}

		title := normalizeSpace(link.Text())
		if runeLen(title) < minTitle {
			return
		}
		if _, ok := skip[strings.ToLower(title)]; ok {
			return
		}

		abs := absoluteURL(base, href)
		if abs == "" {
			return
		}

		text := title
		parent := link.Parent()
		if parent.Length() > 0 {
			if pt := normalizeSpace(parent.Text()); pt != "" {
				text = pt
			}
		}

		out = append(out, models.Announcement{
			Title:       title,
			URL:         CanonicalizeURL(abs, false),
			RawText:     text,
			Deadline:    findDate(text),
			Attachments: collectPDFLinks(parent, base),
		})
	})
	return out, nil
}
