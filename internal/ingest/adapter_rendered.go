package ingest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/david/bandi-sentinel/internal/models"
)

// extractRenderedContainers walks a rendered DOM. Bold runs are taken as
// titles first, then generic containers holding both a link and enough text.
func extractRenderedContainers(doc *goquery.Document, base *url.URL, cfg SourceConfig) ([]models.Announcement, error) {
	minText := orDefault(cfg.MinTextLen, 40)
	maxText := orDefault(cfg.MaxTextLen, 800)
	minTitle := orDefault(cfg.MinTitle, 10)

	var out []models.Announcement

	doc.Find("strong, b").Each(func(_ int, bold *goquery.Selection) {
		title := stripBoilerplate(bold.Text())
		if n := runeLen(title); n < minTitle || n > maxText {
			return
		}
		container := bold.Parent()

		// Several bold runs under one parent are separate announcements: each
		// owns the siblings up to the next bold element.
		if container.ChildrenFiltered("strong, b").Length() > 1 {
			run := boldRun(bold)
			text := normalizeSpace(title + " " + run.Text())
			if runeLen(text) > maxText {
				text = title
			}
			link := nearestLink(bold, run)
			attachments := collectPDFLinks(run, base)
			out = append(out, newCandidate(title, text, link, attachments, base, cfg))
			return
		}

		text := normalizeSpace(container.Text())
		if runeLen(text) > maxText {
			text = title
		}
		link := nearestLink(bold, emptySelection(bold))
		if link == nil {
			link = container.Find("a[href]").First()
		}
		out = append(out, newCandidate(title, text, link, collectPDFLinks(container, base), base, cfg))
	})

	doc.Find("li, article, div, section, p").Each(func(_ int, c *goquery.Selection) {
		link := c.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		text := normalizeSpace(c.Text())
		if n := runeLen(text); n < minText || n > maxText {
			return
		}
		title := stripBoilerplate(link.Text())
		if runeLen(title) < minTitle {
			title = truncateRunes(stripBoilerplate(text), 120)
		}
		if runeLen(title) < minTitle {
			return
		}
		out = append(out, candidateFromContainer(title, text, c, base, cfg))
	})

	return out, nil
}

// candidateFromContainer prefers a real detail link inside the container and
// falls back to a synthetic url.
func candidateFromContainer(title, text string, c *goquery.Selection, base *url.URL, cfg SourceConfig) models.Announcement {
	return newCandidate(title, text, c.Find("a[href]").First(), collectPDFLinks(c, base), base, cfg)
}

func newCandidate(title, text string, link *goquery.Selection, attachments []string, base *url.URL, cfg SourceConfig) models.Announcement {
	a := models.Announcement{
		Title:       title,
		RawText:     text,
		Deadline:    findDate(text),
		Attachments: attachments,
	}

	if link != nil {
		if href, ok := link.Attr("href"); ok {
			if abs := absoluteURL(base, href); abs != "" && !isFileLink(abs) && abs != cfg.URL {
				a.URL = CanonicalizeURL(abs, false)
			}
		}
	}
	if a.URL == "" {
		a.URL = syntheticURL(cfg.URL, title)
	}
	return a
}

// boldRun returns the sibling nodes, text included, that follow bold up to
// the next bold element.
func boldRun(bold *goquery.Selection) *goquery.Selection {
	var nodes []*html.Node
	for n := bold.Nodes[0].NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && (n.Data == "strong" || n.Data == "b") {
			break
		}
		nodes = append(nodes, n)
	}
	return emptySelection(bold).AddNodes(nodes...)
}

// nearestLink finds the anchor wrapping bold, inside it, or first among run.
// It returns nil when there is none.
func nearestLink(bold, run *goquery.Selection) *goquery.Selection {
	if a := bold.Closest("a[href]"); a.Length() > 0 {
		return a
	}
	if a := bold.Find("a[href]").First(); a.Length() > 0 {
		return a
	}
	var found *goquery.Selection
	run.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is("a[href]") {
			found = s
			return false
		}
		if a := s.Find("a[href]").First(); a.Length() > 0 {
			found = a
			return false
		}
		return true
	})
	return found
}

func emptySelection(s *goquery.Selection) *goquery.Selection {
	return s.Slice(0, 0)
}

func isFileLink(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "mailto", "tel", "javascript":
		return true
	}
	return strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf")
}
