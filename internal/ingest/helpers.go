package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	slugRegex        = regexp.MustCompile(`[^a-z0-9]`)
	boilerplateRegex = regexp.MustCompile(`(?i)(clicca qui per|clicca qui|scopri di più|leggi tutto|vai alla pagina dedicata).*`)
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripBoilerplate removes call-to-action tails such as "Clicca qui per...".
func stripBoilerplate(s string) string {
	return normalizeSpace(boilerplateRegex.ReplaceAllString(s, ""))
}

// slugify lower-cases the first 50 runes of s and replaces anything that is not
// [a-z0-9] with '-'. The result is only used as a deterministic dedup key.
func slugify(s string) string {
	s = strings.ToLower(truncateRunes(s, 50))
	return slugRegex.ReplaceAllString(s, "-")
}

// syntheticURL builds the dedup identifier for sites without per-item links.
func syntheticURL(listingURL, title string) string {
	base := listingURL
	if i := strings.Index(base, "#"); i >= 0 {
		base = base[:i]
	}
	return base + "#" + slugify(title)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// TruncateText cuts a string to max runes, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return truncateRunes(text, maxLen-3) + "..."
	}
	return truncateRunes(text, maxLen)
}

// runeLen is the length used by the de-noising bounds.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// mergeUniqueFold appends items not already present (case-insensitive).
func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		k := strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			seen[k] = struct{}{}
		}
	}

	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}

	return dst
}
