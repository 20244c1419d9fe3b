package relevance

// Filter rejects announcements that mention procurement results, committee
// appointments, awards or rankings.
type Filter struct {
	exclusions *Matcher
}

func NewFilter(p Profile) *Filter {
	return &Filter{exclusions: NewMatcher(p.clone().ExclusionTerms)}
}

// IsAcceptable returns false when any exclusion term occurs in title or text.
func (f *Filter) IsAcceptable(title, rawText string) bool {
	_, rejected := f.Rejection(title, rawText)
	return !rejected
}

// Rejection returns the first exclusion term (table order) found, if any.
func (f *Filter) Rejection(title, rawText string) (string, bool) {
	idx := f.exclusions.Match(title + " " + rawText)
	if len(idx) == 0 {
		return "", false
	}
	return f.exclusions.Term(idx[0]), true
}
