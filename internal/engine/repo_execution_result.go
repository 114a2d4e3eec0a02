package engine

import (
	"rxbench/internal/results"
	"rxbench/internal/workspace"
)

// Phase marks where in a repository's analysis a streamed result sits.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseUnit
	PhaseFinished
)

// RepoExecutionResult is one step of analyzing a single repository.
//
// It is emitted by the scheduler and consumed by the engine during streaming
// execution. Unit is set for PhaseUnit; Report is set for PhaseFinished, and
// Err is non-nil there when the repository could not be resolved.
type RepoExecutionResult struct {
	Index  int
	Target workspace.Target
	Phase  Phase
	Unit   *results.UnitResult
	Report *results.RepositoryReport
	Err    error
}
