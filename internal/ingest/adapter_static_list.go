package ingest

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/bandi-sentinel/internal/models"
)

// extractStaticList reads every list item of a page as a candidate. The site
// has no per-item links, so the url is synthesized from the title.
func extractStaticList(doc *goquery.Document, base *url.URL, cfg SourceConfig) ([]models.Announcement, error) {
	minText := orDefault(cfg.MinTextLen, 10)
	maxText := orDefault(cfg.MaxTextLen, 500)
	minTitle := orDefault(cfg.MinTitle, 10)

	var out []models.Announcement
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		text := normalizeSpace(li.Text())
		if n := runeLen(text); n < minText || n > maxText {
			return
		}

		title := stripBoilerplate(text)
		if runeLen(title) < minTitle {
			return
		}

		out = append(out, models.Announcement{
			Title:       title,
			URL:         syntheticURL(cfg.URL, title),
			RawText:     text,
			Deadline:    findDate(text),
			Attachments: collectPDFLinks(li, base),
		})
	})
	return out, nil
}
