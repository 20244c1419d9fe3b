package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/david/bandi-sentinel/internal/models"
)

// RunSummary is the input of the end-of-run message.
type RunSummary struct {
	At     time.Time
	Found  int
	New    int
	Total  int      // announcements in storage after the run
	Failed []string // sources whose adapter failed
}

// FormatNewAnnouncement renders the alert for one newly stored announcement.
func FormatNewAnnouncement(a models.StoredAnnouncement) string {
	keywords := "N/A"
	if len(a.MatchedTerms) > 0 {
		keywords = strings.Join(a.MatchedTerms, ", ")
	}

	var b strings.Builder
	b.WriteString("🆕 NUOVO BANDO\n\n")
	b.WriteString(a.Title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "🏢 Ente: %s\n", orNA(a.IssuingAuthority))
	fmt.Fprintf(&b, "📅 Scadenza: %s\n", formatDeadline(a.Deadline))
	fmt.Fprintf(&b, "🏷️ Keywords: %s\n", keywords)
	fmt.Fprintf(&b, "⭐ Score: %d/100\n\n", a.Score)
	fmt.Fprintf(&b, "🔗 %s", a.URL)
	return b.String()
}

// FormatRunSummary renders the message sent once per run.
func FormatRunSummary(s RunSummary) string {
	var b strings.Builder
	b.WriteString("✅ Scansione completata\n")
	fmt.Fprintf(&b, "📅 %s\n", s.At.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "🔍 Bandi analizzati: %d\n", s.Found)
	if s.New == 0 {
		b.WriteString("🆕 Nessun bando nuovo\n")
	} else {
		fmt.Fprintf(&b, "🆕 Nuovi bandi trovati: %d\n", s.New)
	}
	fmt.Fprintf(&b, "📊 Database: %d bandi totali", s.Total)
	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, "\n⚠️ Fonti in errore: %s", strings.Join(s.Failed, ", "))
	}
	return b.String()
}

// FormatDigest renders the full listing sent on digest days. Titles are cut
// to 80 characters.
func FormatDigest(all []models.StoredAnnouncement, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 RIEPILOGO QUINDICINALE - %s\n", at.Format("02/01/2006"))
	fmt.Fprintf(&b, "Tutti i %d bandi attivi nel database:\n\n", len(all))

	for i, a := range all {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cut(a.Title, 80))
		fmt.Fprintf(&b, "   🏢 %s | 📅 Scade: %s\n\n", orNA(a.IssuingAuthority), formatDeadline(a.Deadline))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDeadline(d *time.Time) string {
	if d == nil {
		return "N/A"
	}
	return d.Format("02/01/2006")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
