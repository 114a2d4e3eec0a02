package results

// RepositorySummary is the per-repository roll-up of its unit results.
//
// Reduced fields are computed over non-error units only and read zero when
// every unit errored. Descriptive fields and LinesOfCode come from the root
// (first) unit.
type RepositorySummary struct {
	RepoInfo
	LinesOfCode  int `json:"lines_of_code"`
	Units        int `json:"members"`
	Errors       int `json:"errors"`
	Dependencies int `json:"dependencies"`
	Features     int `json:"defined_features"`
	ToolMetrics
	ExecutionTime Value `json:"execution_time"`
	PeakMemory    Value `json:"peak_memory_usage"`
	// Failure is set when the repository could not be resolved into units.
	Failure string `json:"failure,omitempty"`
}

// RepositoryReport pairs a summary with the ordered units it was built from.
type RepositoryReport struct {
	Summary RepositorySummary `json:"summary"`
	Units   []UnitResult      `json:"units"`
}

// Summarize reduces the ordered unit results of one repository. units[0] must
// be the root unit.
func Summarize(units []UnitResult) RepositorySummary {
	s := RepositorySummary{
		Units:         len(units),
		ToolMetrics:   zeroMetrics(),
		ExecutionTime: Of(0),
		PeakMemory:    Of(0),
	}
	if len(units) == 0 {
		return s
	}

	root := units[0]
	s.RepoInfo = root.RepoInfo
	s.LinesOfCode = root.LinesOfCode

	for _, u := range units {
		if u.IsError {
			s.Errors++
			continue
		}
		s.Dependencies += u.Dependencies
		s.Features += u.Features
		s.ToolMetrics = s.ToolMetrics.Merge(u.ToolMetrics)
		s.ExecutionTime = s.ExecutionTime.Plus(u.ExecutionTime)
		s.PeakMemory = s.PeakMemory.Max(u.PeakMemory)
	}
	return s
}

// FailedSummary is the single summary row emitted for a repository whose
// units could not be resolved.
func FailedSummary(info RepoInfo, err error) RepositorySummary {
	s := Summarize(nil)
	s.RepoInfo = info
	if err != nil {
		s.Failure = err.Error()
	}
	return s
}

// GroupByRepository splits a flat, ordered list of unit results into
// consecutive runs that share a repository URL (or name, when the URL is
// empty).
func GroupByRepository(units []UnitResult) [][]UnitResult {
	var groups [][]UnitResult
	key := func(u UnitResult) string {
		if u.URL != "" {
			return u.URL
		}
		return u.Name
	}
	for _, u := range units {
		n := len(groups)
		if n > 0 && key(groups[n-1][0]) == key(u) {
			groups[n-1] = append(groups[n-1], u)
			continue
		}
		groups = append(groups, []UnitResult{u})
	}
	return groups
}

// SummarizeAll rebuilds one report per repository from a flat, ordered list
// of unit results such as a saved run document.
func SummarizeAll(units []UnitResult) []RepositoryReport {
	groups := GroupByRepository(units)
	out := make([]RepositoryReport, 0, len(groups))
	for _, g := range groups {
		out = append(out, RepositoryReport{Summary: Summarize(g), Units: g})
	}
	return out
}
