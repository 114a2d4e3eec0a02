package results

// AnalysisUnit is one repository root or one workspace member: the smallest
// thing the analysis tool runs against.
type AnalysisUnit struct {
	// Repository is the repository display name.
	Repository string
	// Member is the workspace member path relative to the repository root.
	// Empty for the root unit.
	Member string
	// Root is the directory the tool runs in.
	Root string
	// ResetManifest asks for a scratch manifest to be substituted while the
	// tool runs.
	ResetManifest bool
}

// IsRoot reports whether u is the repository root unit.
func (u AnalysisUnit) IsRoot() bool {
	return u.Member == ""
}

// Label is the name shown for the unit in results.
func (u AnalysisUnit) Label() string {
	if u.Member == "" {
		return u.Repository
	}
	return u.Member
}

// StaticCounts is unit metadata computed without running the tool.
type StaticCounts struct {
	LinesOfCode  int
	Dependencies int
	Features     int
}

// Popularity holds remote registry annotations. Either may be unavailable.
type Popularity struct {
	Stars     Value
	Downloads Value
}

// RepoInfo identifies a repository in every emitted record.
type RepoInfo struct {
	URL       string `json:"url"`
	Name      string `json:"crate"`
	Stars     Value  `json:"github_stars"`
	Downloads Value  `json:"cratesio_downloads"`
}

// NewRepoInfo combines a repository identity with its popularity annotations.
func NewRepoInfo(url, name string, p Popularity) RepoInfo {
	return RepoInfo{URL: url, Name: name, Stars: p.Stars, Downloads: p.Downloads}
}

// UnitResult is the flattened per-unit row. When IsError is true every
// metric, ExecutionTime and PeakMemory are unavailable; static counts are
// always populated.
type UnitResult struct {
	RepoInfo
	Member       string `json:"member"`
	IsError      bool   `json:"error"`
	Status       Kind   `json:"status"`
	Detail       string `json:"detail,omitempty"`
	LinesOfCode  int    `json:"lines_of_code"`
	Dependencies int    `json:"dependencies"`
	Features     int    `json:"defined_features"`
	ToolMetrics
	// ExecutionTime is wall time in seconds.
	ExecutionTime Value `json:"execution_time"`
	// PeakMemory is in bytes.
	PeakMemory Value `json:"peak_memory_usage"`
	Records    int   `json:"records,omitempty"`
}

// NewUnitResult merges static metadata with an execution outcome.
func NewUnitResult(info RepoInfo, unit AnalysisUnit, static StaticCounts, out Outcome) UnitResult {
	r := UnitResult{
		RepoInfo:     info,
		Member:       unit.Label(),
		IsError:      out.IsError(),
		Status:       out.Kind,
		Detail:       out.Detail,
		LinesOfCode:  static.LinesOfCode,
		Dependencies: static.Dependencies,
		Features:     static.Features,
	}
	if r.IsError {
		if r.Status == KindSuccess {
			r.Status = KindMalformedOutput
		}
		return r
	}
	s := out.Success
	r.ToolMetrics = s.Metrics
	r.ExecutionTime = Of(s.ExecutionTime.Seconds())
	r.PeakMemory = Of(float64(s.PeakMemory))
	r.Records = s.Records
	return r
}
