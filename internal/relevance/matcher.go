package relevance

import (
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Matcher finds configured terms inside text in a single pass.
// Matching is case-insensitive and by substring, so short terms can over-match.
type Matcher struct {
	terms   []string // as configured, deduplicated, table order
	matcher *ahocorasick.Matcher
}

// NewMatcher builds the automaton. Terms equal under case folding are kept once,
// at the position of their first occurrence.
func NewMatcher(terms []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))

	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := normalizeKeyword(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		m.terms = append(m.terms, t)
		normalized = append(normalized, key)
	}

	if len(normalized) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return m
}

// Match returns the indices of matched terms in ascending (table) order.
func (m *Matcher) Match(text string) []int {
	if m.matcher == nil || text == "" {
		return nil
	}
	hits := m.matcher.Match([]byte(normalizeText(text)))
	if len(hits) == 0 {
		return nil
	}

	uniq := make(map[int]struct{}, len(hits))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		if h < 0 || h >= len(m.terms) {
			continue
		}
		if _, ok := uniq[h]; ok {
			continue
		}
		uniq[h] = struct{}{}
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// Terms returns the matched terms as configured, in table order.
func (m *Matcher) Terms(text string) []string {
	idx := m.Match(text)
	if len(idx) == 0 {
		return []string{}
	}
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = m.terms[k]
	}
	return out
}

// Any reports whether at least one term occurs in text.
func (m *Matcher) Any(text string) bool {
	return len(m.Match(text)) > 0
}

// Term returns the configured term at index i.
func (m *Matcher) Term(i int) string {
	return m.terms[i]
}

func (m *Matcher) Len() int {
	return len(m.terms)
}

func normalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeText(s string) string {
	return strings.ToLower(s)
}
