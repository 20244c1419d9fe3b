package ingest

import (
	stdhtml "html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeRawText strips any markup left in extracted text before it is
// stored. Entities escaped by the policy are decoded again.
func sanitizeRawText(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return normalizeSpace(s)
	}
	return normalizeSpace(stdhtml.UnescapeString(strictPolicy.Sanitize(s)))
}

// CanonicalizeURL lowercases the host and drops tracking parameters. Fragments
// survive only when keepFragment is set, which synthetic listing URLs need.
func CanonicalizeURL(rawURL string, keepFragment bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	if !keepFragment {
		u.Fragment = ""
		u.RawFragment = ""
	}

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "s_cid"} {
		q.Del(p)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// absoluteURL resolves href against base.
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
