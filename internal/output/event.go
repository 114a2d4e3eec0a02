package output

import (
	"encoding/json"
	"io"

	"rxbench/internal/results"
)

const (
	EventRunStarted   = "run.started"
	EventRepoStarted  = "repo.started"
	EventUnitResult   = "unit.result"
	EventRepoSummary  = "repo.summary"
	EventRepoFailed   = "repo.failed"
	EventRepoFinished = "repo.finished"
	EventRunFinished  = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// Sinks accept Event values directly, and also results.UnitResult and
// results.RepositorySummary, which stream as unit.result and repo.summary
// (or repo.failed) events. JSON mode is an aggregate Document instead.
type Event struct {
	Type     string                     `json:"type"`
	RunID    string                     `json:"run_id,omitempty"`
	Repo     string                     `json:"repo,omitempty"`
	Unit     *results.UnitResult        `json:"unit,omitempty"`
	Summary  *results.RepositorySummary `json:"summary,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Repos    int                        `json:"repos,omitempty"`
	ExitCode int                        `json:"exit_code,omitempty"`
}

func eventFromUnit(u results.UnitResult) Event {
	return Event{Type: EventUnitResult, Repo: u.Name, Unit: &u}
}

func eventFromSummary(s results.RepositorySummary) Event {
	if s.Failure != "" {
		return Event{Type: EventRepoFailed, Repo: s.Name, Summary: &s, Error: s.Failure}
	}
	return Event{Type: EventRepoSummary, Repo: s.Name, Summary: &s}
}

// asEvent converts anything a sink accepts into its streaming form.
func asEvent(v any) (Event, bool) {
	switch t := v.(type) {
	case Event:
		return t, true
	case results.UnitResult:
		return eventFromUnit(t), true
	case results.RepositorySummary:
		return eventFromSummary(t), true
	default:
		return Event{}, false
	}
}

// encodeEvent writes v as one NDJSON line when it is streamable.
func encodeEvent(w io.Writer, v any) error {
	e, ok := asEvent(v)
	if !ok {
		return nil
	}
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(w)
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}
