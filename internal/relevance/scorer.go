package relevance

import (
	"strings"
	"time"

	"github.com/david/bandi-sentinel/internal/models"
)

// ScoreContext carries the inputs of a score that are not part of the announcement.
type ScoreContext struct {
	Now time.Time
}

// Breakdown is the per-signal contribution to a score.
type Breakdown struct {
	Terms     int `json:"terms"`
	Authority int `json:"authority"`
	Deadline  int `json:"deadline"`
	Budget    int `json:"budget"`
	Total     int `json:"total"`
}

// Scorer computes a bounded relevance score. It is a pure function of the
// announcement, the context and the profile it was built with.
type Scorer struct {
	profile Profile
	terms   *Matcher
	weights []int // parallel to terms.terms
}

func NewScorer(p Profile) *Scorer {
	p = p.clone()

	raw := make([]string, len(p.PositiveTerms))
	for i, t := range p.PositiveTerms {
		raw[i] = t.Term
	}
	m := NewMatcher(raw)

	// Weights follow the matcher's deduplicated order.
	byTerm := make(map[string]int, len(p.PositiveTerms))
	for _, t := range p.PositiveTerms {
		key := normalizeKeyword(t.Term)
		if _, ok := byTerm[key]; !ok {
			byTerm[key] = t.Weight
		}
	}
	weights := make([]int, m.Len())
	for i := 0; i < m.Len(); i++ {
		weights[i] = byTerm[normalizeKeyword(m.Term(i))]
	}

	return &Scorer{profile: p, terms: m, weights: weights}
}

// ExtractMatchedTerms returns every positive term found in text, in table order,
// without duplicates.
func (s *Scorer) ExtractMatchedTerms(text string) []string {
	return s.terms.Terms(text)
}

// Score returns the clamped total score.
func (s *Scorer) Score(a models.Announcement, sc ScoreContext) int {
	return s.Breakdown(a, sc).Total
}

func (s *Scorer) Breakdown(a models.Announcement, sc ScoreContext) Breakdown {
	text := a.Title + " " + a.RawText
	var b Breakdown

	for _, idx := range s.terms.Match(text) {
		b.Terms += s.weights[idx]
	}
	if b.Terms > s.profile.TermCap {
		b.Terms = s.profile.TermCap
	}

	b.Authority = s.authorityPoints(a.IssuingAuthority)
	b.Deadline = s.deadlinePoints(a.Deadline, sc.Now)
	b.Budget = budgetPoints(s.profile, text)

	b.Total = clamp(b.Terms+b.Authority+b.Deadline+b.Budget, s.profile.MinScore, s.profile.MaxScore)
	return b
}

func (s *Scorer) authorityPoints(authority string) int {
	lower := strings.ToLower(authority)
	if lower == "" {
		return 0
	}
	for _, pa := range s.profile.PriorityAuthorities {
		if pa = strings.ToLower(strings.TrimSpace(pa)); pa != "" && strings.Contains(lower, pa) {
			return s.profile.AuthorityBonus
		}
	}
	return 0
}

func (s *Scorer) deadlinePoints(deadline *time.Time, now time.Time) int {
	if deadline == nil || now.IsZero() {
		return 0
	}
	days := int(deadline.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	for _, band := range s.profile.DeadlineBands {
		if days >= band.MinDays {
			return band.Points
		}
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
