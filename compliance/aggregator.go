package compliance

// Summary reduces a result set to verdict counts and an overall flag
type Summary struct {
	Total  int             `json:"total"`
	Counts map[Verdict]int `json:"counts"`
	// PassAll is true when every result is PASS or NOT_APPLICABLE
	PassAll bool `json:"pass_all"`
	// Requirement ids per blocking verdict, in result order
	Failed       []string `json:"failed,omitempty"`
	Inconclusive []string `json:"inconclusive,omitempty"`
}

// Summarize counts verdicts. Only verdicts that occur appear in Counts.
// The input is not modified.
func Summarize(results []CheckResult) Summary {
	s := Summary{
		Total:   len(results),
		Counts:  make(map[Verdict]int),
		PassAll: true,
	}
	for _, r := range results {
		s.Counts[r.Verdict]++
		switch r.Verdict {
		case VerdictFail:
			s.Failed = append(s.Failed, r.RequirementID)
		case VerdictInconclusive:
			s.Inconclusive = append(s.Inconclusive, r.RequirementID)
		}
		if !r.Compliant() {
			s.PassAll = false
		}
	}
	return s
}

// Count returns the number of results with verdict v
func (s Summary) Count(v Verdict) int {
	return s.Counts[v]
}
