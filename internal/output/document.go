package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"rxbench/internal/results"
)

// Document is the aggregate form of a run: one summary per repository and
// every unit result, both in analysis order.
type Document struct {
	Repositories []results.RepositorySummary `json:"repositories"`
	Units        []results.UnitResult        `json:"units"`
}

// NewDocument flattens reports into a Document.
func NewDocument(reports []results.RepositoryReport) Document {
	d := Document{
		Repositories: make([]results.RepositorySummary, 0, len(reports)),
		Units:        []results.UnitResult{},
	}
	for _, r := range reports {
		d.Repositories = append(d.Repositories, r.Summary)
		d.Units = append(d.Units, r.Units...)
	}
	return d
}

// Reaggregate rebuilds every summary from the unit results. Summaries of
// unresolved repositories have no units and are carried over after the
// rebuilt ones.
func (d Document) Reaggregate() Document {
	out := NewDocument(results.SummarizeAll(d.Units))
	for _, s := range d.Repositories {
		if s.Failure != "" && s.Units == 0 {
			out.Repositories = append(out.Repositories, s)
		}
	}
	return out
}

// add records v when it is a result; lifecycle events are ignored.
func (d *Document) add(v any) {
	switch t := v.(type) {
	case results.UnitResult:
		d.Units = append(d.Units, t)
	case results.RepositorySummary:
		d.Repositories = append(d.Repositories, t)
	}
}

// WriteJSON writes d as one indented JSON object. Nil lists encode as [].
func (d Document) WriteJSON(w io.Writer) error {
	if d.Repositories == nil {
		d.Repositories = []results.RepositorySummary{}
	}
	if d.Units == nil {
		d.Units = []results.UnitResult{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(d); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// ErrEmptyDocument is returned by ReadDocument for input with no content.
var ErrEmptyDocument = errors.New("empty document")

// ReadDocument loads a saved run. It accepts, in order of preference:
//   - a Document object ({"repositories": [...], "units": [...]})
//   - a JSON array of unit results
//   - a JSON array of per-repository arrays of unit results
//   - an NDJSON event stream (unit.result, repo.summary, repo.failed)
//
// Array rows without a "status" key come from the older benchmark scripts,
// which stored peak memory in MiB; their memory is converted to bytes.
func ReadDocument(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read document: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Document{}, ErrEmptyDocument
	}

	if raw[0] == '[' {
		var flat []results.UnitResult
		if err := json.Unmarshal(raw, &flat); err == nil {
			return Document{Units: fromMiBRows(flat)}, nil
		}
		var nested [][]results.UnitResult
		if err := json.Unmarshal(raw, &nested); err != nil {
			return Document{}, fmt.Errorf("decode unit array: %w", err)
		}
		var d Document
		for _, group := range nested {
			d.Units = append(d.Units, fromMiBRows(group)...)
		}
		return d, nil
	}

	var d Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err == nil && !dec.More() {
		return d, nil
	}
	return readEventStream(raw)
}

// fromMiBRows scales the memory of status-less rows from MiB to bytes.
func fromMiBRows(units []results.UnitResult) []results.UnitResult {
	for i := range units {
		if units[i].Status != "" {
			continue
		}
		if mib, ok := units[i].PeakMemory.Get(); ok {
			units[i].PeakMemory = results.Of(mib * 1024 * 1024)
		}
	}
	return units
}

func readEventStream(raw []byte) (Document, error) {
	var d Document
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(text, &e); err != nil {
			return Document{}, fmt.Errorf("decode event on line %d: %w", line, err)
		}
		switch e.Type {
		case EventUnitResult:
			if e.Unit != nil {
				d.Units = append(d.Units, *e.Unit)
			}
		case EventRepoSummary, EventRepoFailed:
			if e.Summary != nil {
				d.Repositories = append(d.Repositories, *e.Summary)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Document{}, fmt.Errorf("read event stream: %w", err)
	}
	return d, nil
}
