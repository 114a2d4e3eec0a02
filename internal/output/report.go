package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"rxbench/internal/results"
)

const (
	ReportMarkdown = "markdown"
	ReportLaTeX    = "latex"
)

var repositoryHeader = table.Row{
	"Crate", "Stars", "Downloads", "LOC", "Members", "Errors", "Deps", "Features",
	"Term nodes", "Term edges", "Term height",
	"Feature nodes", "Feature edges", "Squashed edges",
	"Artifact nodes", "Artifact edges",
	"Time", "Peak memory",
}

var unitHeader = table.Row{
	"Crate", "Member", "Status", "LOC", "Deps", "Features",
	"Term nodes", "Term edges", "Term height",
	"Feature nodes", "Feature edges", "Squashed edges",
	"Artifact nodes", "Artifact edges",
	"Time", "Peak memory",
}

// RenderReport writes doc in the given format (markdown or latex).
func RenderReport(w io.Writer, doc Document, format string) error {
	switch format {
	case ReportMarkdown:
		return renderMarkdown(w, doc)
	case ReportLaTeX:
		return renderLaTeX(w, doc)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func repositoryRow(s results.RepositorySummary) table.Row {
	row := table.Row{
		s.Name, count(s.Stars), count(s.Downloads),
		s.LinesOfCode, s.Units, s.Errors, s.Dependencies, s.Features,
	}
	for _, c := range metricCells(s.ToolMetrics) {
		row = append(row, c)
	}
	return append(row, seconds(s.ExecutionTime), memory(s.PeakMemory))
}

func unitRow(u results.UnitResult) table.Row {
	row := table.Row{u.Name, u.Member, string(u.Status), u.LinesOfCode, u.Dependencies, u.Features}
	for _, c := range metricCells(u.ToolMetrics) {
		row = append(row, c)
	}
	return append(row, seconds(u.ExecutionTime), memory(u.PeakMemory))
}

func renderMarkdown(w io.Writer, doc Document) error {
	var b strings.Builder
	b.WriteString("# rxbench Report\n\n")

	b.WriteString("## Repositories\n\n")
	if len(doc.Repositories) == 0 {
		b.WriteString("No repositories were analyzed.\n\n")
	} else {
		t := table.NewWriter()
		t.AppendHeader(repositoryHeader)
		for _, s := range doc.Repositories {
			t.AppendRow(repositoryRow(s))
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n\n")
	}

	var failed []results.RepositorySummary
	for _, s := range doc.Repositories {
		if s.Failure != "" {
			failed = append(failed, s)
		}
	}
	if len(failed) > 0 {
		b.WriteString("### Unresolved repositories\n\n")
		for _, s := range failed {
			fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Failure)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Units\n\n")
	if len(doc.Units) == 0 {
		b.WriteString("No units were analyzed.\n")
	} else {
		t := table.NewWriter()
		t.AppendHeader(unitHeader)
		for _, u := range doc.Units {
			t.AppendRow(unitRow(u))
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n")

		var errored []results.UnitResult
		for _, u := range doc.Units {
			if u.IsError && u.Detail != "" {
				errored = append(errored, u)
			}
		}
		if len(errored) > 0 {
			b.WriteString("\n### Unit errors\n\n")
			for _, u := range errored {
				fmt.Fprintf(&b, "- **%s / %s** (%s): %s\n", u.Name, u.Member, u.Status, u.Detail)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderLaTeX writes table bodies only: one row per repository, then the
// per-crate rows grouped with \multirow. Table environments are left to the
// including document.
func renderLaTeX(w io.Writer, doc Document) error {
	var b strings.Builder
	b.WriteString("% repositories\n")
	for _, s := range doc.Repositories {
		b.WriteString(latexRepositoryRow(s))
		b.WriteString("\n")
	}
	b.WriteString("\n% crates\n")
	for _, group := range results.GroupByRepository(doc.Units) {
		b.WriteString(latexCrateRows(group))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func latexHref(info results.RepoInfo) string {
	return fmt.Sprintf(`\href{%s}{{%s}}`, latexEscape(info.URL), latexEscape(info.Name))
}

func latexRepositoryRow(s results.RepositorySummary) string {
	cells := []string{
		latexHref(s.RepoInfo),
		count(s.Stars),
		count(s.Downloads),
		fmt.Sprint(s.LinesOfCode),
		fmt.Sprint(s.Units),
		fmt.Sprint(s.Errors),
		fmt.Sprint(s.Dependencies),
		fmt.Sprint(s.Features),
	}
	cells = append(cells, metricCells(s.ToolMetrics)...)
	cells = append(cells, seconds(s.ExecutionTime), megabytes(s.PeakMemory))
	return strings.Join(cells, " & ") + ` \\ \hline`
}

func latexCrateRows(units []results.UnitResult) string {
	var b strings.Builder
	n := len(units)
	for i, u := range units {
		cells := []string{
			latexEscape(u.Member),
			fmt.Sprint(u.LinesOfCode),
			fmt.Sprint(u.Dependencies),
			fmt.Sprint(u.Features),
		}
		if u.IsError {
			cells = append(cells, `\multicolumn{10}{c|}{\textit{error}}`)
		} else {
			cells = append(cells, metricCells(u.ToolMetrics)...)
			cells = append(cells, seconds(u.ExecutionTime), megabytes(u.PeakMemory))
		}

		if i == 0 {
			fmt.Fprintf(&b, `\multirow{%d}{*}{%s} & \multirow{%d}{*}{%s} & \multirow{%d}{*}{%s} & `,
				n, latexHref(u.RepoInfo), n, count(u.Stars), n, count(u.Downloads))
		} else {
			b.WriteString("& & & ")
		}
		b.WriteString(strings.Join(cells, " & "))

		rule := `\cline{4-17}`
		if i == n-1 {
			rule = `\hline`
		}
		b.WriteString(` \\ ` + rule + "\n")
	}
	return b.String()
}

// ReportSink collects results and renders a report file on Close.
type ReportSink struct {
	path   string
	format string
	file   *os.File
	mu     sync.Mutex
	doc    Document
}

func NewReportSink(path, format string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	if format != ReportMarkdown && format != ReportLaTeX {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{path: path, format: format, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.add(v)
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := RenderReport(s.file, s.doc, s.format)
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
