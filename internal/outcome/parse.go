// Package outcome turns captured tool output into typed results.
package outcome

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"rxbench/internal/results"
)

// record is one output line as the analysis tool spells it.
type record struct {
	TermNodes            results.Value `json:"term_nodes"`
	TermEdges            results.Value `json:"term_edges"`
	TermHeight           results.Value `json:"term_height"`
	FeatureNodes         results.Value `json:"features_nodes"`
	FeatureEdges         results.Value `json:"features_edges"`
	FeatureSquashedEdges results.Value `json:"features_squashed_edges"`
	ArtifactNodes        results.Value `json:"artifacts_nodes"`
	ArtifactEdges        results.Value `json:"artifacts_edges"`
}

func (r record) metrics() results.ToolMetrics {
	return results.ToolMetrics{
		TermNodes:            r.TermNodes,
		TermEdges:            r.TermEdges,
		TermHeight:           r.TermHeight,
		FeatureNodes:         r.FeatureNodes,
		FeatureEdges:         r.FeatureEdges,
		FeatureSquashedEdges: r.FeatureSquashedEdges,
		ArtifactNodes:        r.ArtifactNodes,
		ArtifactEdges:        r.ArtifactEdges,
	}
}

// Rejected is an output line that did not decode as a record.
type Rejected struct {
	Line int
	Text string
	Err  error
}

func (r Rejected) Error() string {
	return fmt.Sprintf("line %d: %v", r.Line, r.Err)
}

// Parsed is the result of decoding one captured stdout.
type Parsed struct {
	Records  []results.ToolMetrics
	Rejected []Rejected
}

// Combined folds every record with the repository reduction rules. ok is
// false when there are no records.
func (p Parsed) Combined() (results.ToolMetrics, bool) {
	if len(p.Records) == 0 {
		return results.ToolMetrics{}, false
	}
	m := p.Records[0]
	for _, r := range p.Records[1:] {
		m = m.Merge(r)
	}
	return m, true
}

// maxLine bounds a single output line. Longer lines are rejected.
var maxLine = 16 << 20

var errLineTooLong = errors.New("line too long")

// Parse decodes stdout as newline-delimited JSON objects. Each line is
// trimmed and decoded on its own; blank lines are ignored and lines that fail
// to decode are reported in Rejected without affecting the others. Missing
// or mistyped fields read as unavailable.
func Parse(stdout []byte) Parsed {
	var p Parsed
	n := 0
	for raw := range bytes.Lines(stdout) {
		n++
		if len(raw) > maxLine {
			p.Rejected = append(p.Rejected, reject(n, raw, fmt.Errorf("%w: %d bytes", errLineTooLong, len(raw))))
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			p.Rejected = append(p.Rejected, reject(n, line, fmt.Errorf("not a JSON object")))
			continue
		}
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			p.Rejected = append(p.Rejected, reject(n, line, err))
			continue
		}
		p.Records = append(p.Records, r.metrics())
	}
	return p
}

func reject(n int, line []byte, err error) Rejected {
	text := string(line)
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return Rejected{Line: n, Text: text, Err: err}
}
