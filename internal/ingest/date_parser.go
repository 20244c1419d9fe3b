package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var italianMonths = map[string]time.Month{
	"gennaio":   time.January,
	"febbraio":  time.February,
	"marzo":     time.March,
	"aprile":    time.April,
	"maggio":    time.May,
	"giugno":    time.June,
	"luglio":    time.July,
	"agosto":    time.August,
	"settembre": time.September,
	"ottobre":   time.October,
	"novembre":  time.November,
	"dicembre":  time.December,
}

var (
	isoDateRegex     = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	numericDateRegex = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})\b`)
	longDateRegex    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})\b`)
	windowRegex      = regexp.MustCompile(`(?i)dal\s+(\d{2}-\d{2}-\d{4})\s*al\s+(\d{2}-\d{2}-\d{4})`)
)

// parseItalianDate parses a single date written as dd-mm-yyyy, dd/mm/yyyy,
// dd.mm.yyyy, "12 marzo 2026" or ISO yyyy-mm-dd. The result is the end of
// that day in UTC.
func parseItalianDate(text string) (time.Time, error) {
	text = cleanDateString(text)

	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}
	if t := findDate(text); t != nil {
		return *t, nil
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// findDate returns the first date found anywhere in text, preferring long
// Italian dates, then numeric day-first dates, then ISO dates.
func findDate(text string) *time.Time {
	if m := longDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := buildDate(m[1], italianMonths[strings.ToLower(m[2])], m[3]); ok {
			return &t
		}
	}
	if m := numericDateRegex.FindStringSubmatch(text); len(m) == 4 {
		month, err := strconv.Atoi(m[2])
		if err == nil {
			if t, ok := buildDate(m[1], time.Month(month), m[3]); ok {
				return &t
			}
		}
	}
	if m := isoDateRegex.FindStringSubmatch(text); len(m) == 4 {
		month, err := strconv.Atoi(m[2])
		if err == nil {
			if t, ok := buildDate(m[3], time.Month(month), m[1]); ok {
				return &t
			}
		}
	}
	return nil
}

// findApplicationWindow extracts the "dal X al Y" window used by FILSE.
func findApplicationWindow(text string) (start, end string, ok bool) {
	m := windowRegex.FindStringSubmatch(text)
	if len(m) != 3 {
		return "", "", false
	}
	return m[1], m[2], true
}

func buildDate(dayStr string, month time.Month, yearStr string) (time.Time, bool) {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject overflow such as 31/02.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return toEndOfDay(t), true
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// cleanDateString removes common prefixes and cleans up date strings
func cleanDateString(s string) string {
	prefixes := []string{
		"Scadenza:", "Data scadenza:", "Termine:", "Chiusura:", "Entro il",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
