package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"rxbench/internal/results"
)

type ConsoleSink struct {
	writer io.Writer
	format string // "text", "json", "ndjson"
	mu     sync.Mutex
	doc    Document // For JSON document output and the text summary table
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{writer: w, format: format}
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
)

func statusLabel(k results.Kind) string {
	label := "[" + string(k) + "]"
	switch k {
	case results.KindSuccess:
		return okColor.Sprint(label)
	case results.KindTimeout:
		return warnColor.Sprint(label)
	default:
		return errColor.Sprint(label)
	}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	switch s.format {
	case "json":
		s.doc.add(v)
		return nil
	case "ndjson":
		return encodeEvent(s.writer, v)
	case "text":
		s.doc.add(v)
		return s.writeText(v)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(v any) error {
	var err error
	switch t := v.(type) {
	case results.UnitResult:
		if t.IsError {
			_, err = fmt.Fprintf(s.writer, "%s %s: %s - %s\n", statusLabel(t.Status), t.Name, t.Member, t.Detail)
			break
		}
		_, err = fmt.Fprintf(s.writer, "%s %s: %s nodes=%s edges=%s height=%s time=%s memory=%s\n",
			statusLabel(t.Status), t.Name, t.Member,
			count(t.TermNodes), count(t.TermEdges), count(t.TermHeight),
			seconds(t.ExecutionTime), memory(t.PeakMemory))
	case results.RepositorySummary:
		if t.Failure != "" {
			_, err = fmt.Fprintf(s.writer, "%s %s - %s\n", errColor.Sprint("[failed]"), t.Name, t.Failure)
			break
		}
		_, err = fmt.Fprintf(s.writer, "== %s: %d units, %d errors, %s total, peak %s\n",
			t.Name, t.Units, t.Errors, seconds(t.ExecutionTime), memory(t.PeakMemory))
	default:
		// Lifecycle events are not shown in text mode.
		return nil
	}
	if err != nil {
		return err
	}
	return flushIfPossible(s.writer)
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		return s.doc.WriteJSON(s.writer)
	case "text":
		if len(s.doc.Repositories) == 0 {
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(s.writer)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Crate", "Members", "Errors", "LOC", "Term nodes", "Term height", "Time", "Peak memory"})
		for _, r := range s.doc.Repositories {
			t.AppendRow(table.Row{
				r.Name, r.Units, r.Errors, r.LinesOfCode,
				count(r.TermNodes), count(r.TermHeight),
				seconds(r.ExecutionTime), memory(r.PeakMemory),
			})
		}
		fmt.Fprintln(s.writer)
		t.Render()
		return flushIfPossible(s.writer)
	case "ndjson":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
