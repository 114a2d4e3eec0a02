package outcome

import (
	"fmt"
	"strings"

	"rxbench/internal/results"
	"rxbench/internal/supervise"
)

// Decide maps one supervised run to exactly one Outcome. The exit code is
// never consulted: only the run status and the parseability of stdout
// matter.
func Decide(run supervise.Result) (results.Outcome, Parsed) {
	switch run.Status {
	case supervise.StatusTimedOut:
		return results.TimedOut(errDetail(run.Err, "deadline exceeded")), Parsed{}
	case supervise.StatusCrashed:
		return results.Crashed(errDetail(run.Err, "process failed")), Parsed{}
	}

	parsed := Parse(run.Stdout)
	metrics, ok := parsed.Combined()
	if !ok {
		return results.Malformed(malformedDetail(run, parsed)), parsed
	}
	return results.Succeeded(results.Success{
		Metrics:       metrics,
		ExecutionTime: run.Elapsed,
		PeakMemory:    run.PeakMemory,
		Records:       len(parsed.Records),
	}), parsed
}

func errDetail(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func malformedDetail(run supervise.Result, p Parsed) string {
	var b strings.Builder
	switch {
	case len(p.Rejected) > 0:
		fmt.Fprintf(&b, "no valid record (%d rejected line(s), first: %v)", len(p.Rejected), p.Rejected[0])
	default:
		b.WriteString("no output")
	}
	if run.ExitCode != 0 {
		fmt.Fprintf(&b, ", exit code %d", run.ExitCode)
	}
	if tail := lastLine(run.Stderr); tail != "" {
		fmt.Fprintf(&b, ": %s", tail)
	}
	return b.String()
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
