package ingest

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/bandi-sentinel/internal/models"
)

// extractDatedLines handles pages that print a title line followed, within
// the next two lines, by "dal DD-MM-YYYY al DD-MM-YYYY". The end date is the
// deadline.
func extractDatedLines(doc *goquery.Document, base *url.URL, cfg SourceConfig) ([]models.Announcement, error) {
	minLine := orDefault(cfg.MinLineLen, 30)
	lines := textLines(doc)

	var out []models.Announcement
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if runeLen(line) <= minLine || i+1 >= len(lines) {
			continue
		}

		near := lines[i+1]
		if i+2 < len(lines) {
			near += " " + lines[i+2]
		}

		start, end, ok := findApplicationWindow(near)
		if !ok {
			continue
		}

		a := models.Announcement{
			Title:   line,
			URL:     syntheticURL(cfg.URL, line),
			RawText: fmt.Sprintf("Domande dal %s al %s. %s", start, end, line),
		}
		if d, err := parseItalianDate(end); err == nil {
			a.Deadline = &d
		}
		out = append(out, a)

		// Skip the window lines so they are never read as titles.
		i += 2
	}
	return out, nil
}
