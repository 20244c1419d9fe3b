// Package relevance decides which announcements matter to the business profile
// and how much. Rules live in an immutable Profile so they can be swapped in tests.
package relevance

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var profileYAML embed.FS

// WeightedTerm is a positive keyword and the points it contributes when found.
type WeightedTerm struct {
	Term   string `yaml:"term"`
	Weight int    `yaml:"weight"`
}

// DeadlineBand awards Points when at least MinDays remain before the deadline.
type DeadlineBand struct {
	MinDays int `yaml:"min_days"`
	Points  int `yaml:"points"`
}

// BudgetBand awards Points when the largest amount mentioned is at least MinAmount.
type BudgetBand struct {
	MinAmount float64 `yaml:"min_amount"`
	Points    int     `yaml:"points"`
}

// Profile is the scoring and filtering configuration. Treat it as a value:
// Filter and Scorer copy what they need at construction time.
type Profile struct {
	TermCap             int            `yaml:"term_cap"`
	AuthorityBonus      int            `yaml:"authority_bonus"`
	MinScore            int            `yaml:"min_score"`
	MaxScore            int            `yaml:"max_score"`
	PositiveTerms       []WeightedTerm `yaml:"positive_terms"`
	ExclusionTerms      []string       `yaml:"exclusion_terms"`
	PriorityAuthorities []string       `yaml:"priority_authorities"`
	DeadlineBands       []DeadlineBand `yaml:"deadline_bands"`
	BudgetBands         []BudgetBand   `yaml:"budget_bands"`
	BudgetMentionPoints int            `yaml:"budget_mention_points"`
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() (Profile, error) {
	data, err := profileYAML.ReadFile("profile.yaml")
	if err != nil {
		return Profile{}, err
	}
	return ParseProfile(data)
}

// LoadProfile reads a profile from path, or the embedded one when path is empty.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.MaxScore == 0 {
		p.MaxScore = 100
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}

	// Bands are evaluated highest threshold first.
	sort.SliceStable(p.DeadlineBands, func(i, j int) bool {
		return p.DeadlineBands[i].MinDays > p.DeadlineBands[j].MinDays
	})
	sort.SliceStable(p.BudgetBands, func(i, j int) bool {
		return p.BudgetBands[i].MinAmount > p.BudgetBands[j].MinAmount
	})
	return p, nil
}

func (p Profile) Validate() error {
	if p.MinScore < 0 || p.MaxScore <= p.MinScore {
		return fmt.Errorf("invalid score range [%d,%d]", p.MinScore, p.MaxScore)
	}
	if p.TermCap < 0 || p.AuthorityBonus < 0 || p.BudgetMentionPoints < 0 {
		return fmt.Errorf("caps and bonuses must be non-negative")
	}
	for _, t := range p.PositiveTerms {
		if strings.TrimSpace(t.Term) == "" {
			return fmt.Errorf("positive term with empty text")
		}
		if t.Weight < 0 {
			return fmt.Errorf("term %q has negative weight", t.Term)
		}
	}
	for _, t := range p.ExclusionTerms {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("empty exclusion term")
		}
	}
	return nil
}

func (p Profile) clone() Profile {
	c := p
	c.PositiveTerms = append([]WeightedTerm(nil), p.PositiveTerms...)
	c.ExclusionTerms = append([]string(nil), p.ExclusionTerms...)
	c.PriorityAuthorities = append([]string(nil), p.PriorityAuthorities...)
	c.DeadlineBands = append([]DeadlineBand(nil), p.DeadlineBands...)
	c.BudgetBands = append([]BudgetBand(nil), p.BudgetBands...)
	return c
}
