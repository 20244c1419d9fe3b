package relevance

import (
	"regexp"
	"strconv"
	"strings"
)

// Italian notation: dots group thousands, comma marks decimals ("€ 1.500.000,00").
var amountRegex = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d+))?(?:\s*(milioni|milione|mln|mila)\b)?`)

var bareMillionRegex = regexp.MustCompile(`(?i)\b(un|one)\s+milione\b`)

// mentionsCurrency reports whether text talks about money at all.
func mentionsCurrency(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "€") || strings.Contains(lower, "euro") || strings.Contains(lower, "eur ")
}

// parseLargestAmount returns the largest amount mentioned in text, in units.
// It is deliberately loose: dates and years parse as small numbers and fall
// below every band that matters.
func parseLargestAmount(text string) float64 {
	var largest float64

	for _, m := range amountRegex.FindAllStringSubmatch(text, -1) {
		whole := strings.ReplaceAll(m[1], ".", "")
		value, err := strconv.ParseFloat(whole, 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			if frac, err := strconv.ParseFloat("0."+m[2], 64); err == nil {
				value += frac
			}
		}
		switch strings.ToLower(m[3]) {
		case "milioni", "milione", "mln":
			value *= 1_000_000
		case "mila":
			value *= 1_000
		}
		if value > largest {
			largest = value
		}
	}

	if largest < 1_000_000 && bareMillionRegex.MatchString(text) {
		largest = 1_000_000
	}
	return largest
}

// budgetPoints maps the budget signal of text to points using the profile bands.
func budgetPoints(p Profile, text string) int {
	if !mentionsCurrency(text) {
		return 0
	}
	amount := parseLargestAmount(text)
	for _, band := range p.BudgetBands {
		if amount >= band.MinAmount {
			return band.Points
		}
	}
	return p.BudgetMentionPoints
}
