package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"rxbench/internal/logging"
	"rxbench/internal/results"
	"rxbench/internal/runmetrics"
	"rxbench/internal/supervise"
	"rxbench/internal/workspace"
)

const metadataLine = `{"term_nodes":100,"term_edges":99,"term_height":5,"features_nodes":7,"features_edges":6,"features_squashed_edges":3,"artifacts_nodes":2,"artifacts_edges":1}`

// recordingRunner answers every command with fn and remembers what it ran.
type recordingRunner struct {
	mu    sync.Mutex
	calls []supervise.Command
	fn    func(c supervise.Command) supervise.Result
}

func (r *recordingRunner) Run(_ context.Context, c supervise.Command) supervise.Result {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	if r.fn == nil {
		return supervise.Result{Status: supervise.StatusExited}
	}
	return r.fn(c)
}

func (r *recordingRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.String())
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newCrate lays out a package "demo" in dir with one workspace member,
// crates/a.
func newCrate(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"demo\"\n\n[dependencies]\nserde = \"1\"\n\n[workspace]\nmembers = [\"crates/a\"]\n")
	writeFile(t, filepath.Join(dir, "src", "main.rs"), "fn main() {\n}\n")
	writeFile(t, filepath.Join(dir, "crates", "a", "Cargo.toml"), "[package]\nname = \"a\"\n\n[dependencies]\nlog = \"0.4\"\nregex = \"1\"\n")
	writeFile(t, filepath.Join(dir, "crates", "a", "src", "lib.rs"), "pub fn a() {}\n")
}

func localTarget(t *testing.T) workspace.Target {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "demo")
	newCrate(t, dir)
	target, err := workspace.ParseTarget(dir)
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	return target
}

// housekeeping plays cargo: "cargo init" writes a scratch manifest,
// everything else succeeds silently.
func housekeeping() *recordingRunner {
	return &recordingRunner{fn: func(c supervise.Command) supervise.Result {
		if c.Path == "cargo" && len(c.Args) > 0 && c.Args[0] == "init" {
			_ = os.WriteFile(filepath.Join(c.Dir, "Cargo.toml"), []byte("[package]\nname = \"temp\"\n"), 0o644)
		}
		return supervise.Result{Status: supervise.StatusExited}
	}}
}

// fakeTool succeeds for root units and times out for staged members.
func fakeTool() *recordingRunner {
	return &recordingRunner{fn: func(c supervise.Command) supervise.Result {
		if strings.Contains(filepath.Base(c.Dir), "MEMBER-") {
			return supervise.Result{Status: supervise.StatusTimedOut, Err: errors.New("deadline of 1s exceeded")}
		}
		return supervise.Result{
			Status:     supervise.StatusExited,
			Stdout:     []byte(metadataLine + "\n"),
			Elapsed:    2_000_000_000,
			PeakMemory: 64 << 20,
		}
	}}
}

func testAnalyzer(toolRunner, runner workspace.Runner) *Analyzer {
	return &Analyzer{
		Tool:        toolRunner,
		Runner:      runner,
		Command:     []string{"cargo-rusty-ex", "--print-metadata"},
		PreCommands: [][]string{{"cargo", "clean"}},
		Scratch:     workspace.DefaultScratchManifest,
		Logger:      logging.Discard(),
		Metrics:     runmetrics.New(),
	}
}

func newResolver(t *testing.T, runner workspace.Runner) *workspace.Resolver {
	t.Helper()
	return &workspace.Resolver{WorkDir: t.TempDir(), Git: "git", Runner: runner, Logger: logging.Discard()}
}

func TestAnalyzer_AnalyzeRepository_RootAndMember(t *testing.T) {
	target := localTarget(t)
	runner := housekeeping()
	tr := fakeTool()
	a := testAnalyzer(tr, runner)
	resolver := newResolver(t, runner)

	var emitted []results.UnitResult
	pop := results.Popularity{Stars: results.Of(12), Downloads: results.Unavailable()}
	report, err := a.AnalyzeRepository(context.Background(), resolver, target, pop, func(u results.UnitResult) {
		emitted = append(emitted, u)
	})
	if err != nil {
		t.Fatalf("AnalyzeRepository: %v", err)
	}

	if len(report.Units) != 2 || len(emitted) != 2 {
		t.Fatalf("expected 2 units reported and emitted, got %d and %d", len(report.Units), len(emitted))
	}

	root := report.Units[0]
	if root.IsError || root.Status != results.KindSuccess {
		t.Fatalf("expected root success, got %+v", root)
	}
	if root.Member != "demo" || root.Name != "demo" {
		t.Fatalf("unexpected root identity: member=%q name=%q", root.Member, root.Name)
	}
	if root.TermNodes != results.Of(100) || root.ArtifactEdges != results.Of(1) {
		t.Fatalf("unexpected root metrics: %+v", root.ToolMetrics)
	}
	if root.ExecutionTime != results.Of(2) {
		t.Fatalf("expected 2s execution time, got %v", root.ExecutionTime)
	}
	if root.Dependencies != 1 {
		t.Fatalf("expected 1 root dependency, got %d", root.Dependencies)
	}
	if root.Stars != results.Of(12) || root.Downloads.Available() {
		t.Fatalf("expected popularity carried onto units, got stars=%v downloads=%v", root.Stars, root.Downloads)
	}

	member := report.Units[1]
	if !member.IsError || member.Status != results.KindTimeout {
		t.Fatalf("expected member timeout, got %+v", member)
	}
	if member.Member != "crates/a" {
		t.Fatalf("expected member label crates/a, got %q", member.Member)
	}
	if member.Dependencies != 2 || member.LinesOfCode != 1 {
		t.Fatalf("expected static counts kept on error, got deps=%d loc=%d", member.Dependencies, member.LinesOfCode)
	}
	if member.ExecutionTime.Available() || member.TermNodes.Available() {
		t.Fatalf("expected error unit metrics unavailable, got %+v", member)
	}

	s := report.Summary
	if s.Units != 2 || s.Errors != 1 || s.Name != "demo" {
		t.Fatalf("unexpected summary: %+v", s)
	}

	cmds := runner.commands()
	want := []string{"cargo clean", "cargo init --name temp --vcs none", "cargo clean"}
	if strings.Join(cmds, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected housekeeping commands: %q", cmds)
	}

	if len(tr.calls) != 2 {
		t.Fatalf("expected the tool to run twice, got %d", len(tr.calls))
	}
	staged := tr.calls[1].Dir
	if filepath.Base(staged) != "MEMBER-a" {
		t.Fatalf("expected member staged as MEMBER-a, got %s", staged)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("expected staged copy removed, stat err=%v", err)
	}

	got, err := os.ReadFile(filepath.Join(target.Source, "crates", "a", "Cargo.toml"))
	if err != nil {
		t.Fatalf("read member manifest: %v", err)
	}
	if !strings.Contains(string(got), `name = "a"`) {
		t.Fatalf("member manifest was modified in place: %s", got)
	}
}

type failingResolver struct{ err error }

func (r failingResolver) Resolve(context.Context, workspace.Target) (*workspace.Workspace, error) {
	return nil, r.err
}

func TestAnalyzer_AnalyzeRepository_Unresolved(t *testing.T) {
	a := testAnalyzer(fakeTool(), housekeeping())
	target := workspace.Target{Source: "https://github.com/acme/widget.git", Name: "widget", URL: "https://github.com/acme/widget"}

	emitted := 0
	report, err := a.AnalyzeRepository(context.Background(), failingResolver{err: errors.New("clone failed")}, target, results.Popularity{}, func(results.UnitResult) {
		emitted++
	})
	if err == nil {
		t.Fatalf("expected resolution error")
	}
	if emitted != 0 || len(report.Units) != 0 {
		t.Fatalf("expected no units, got emitted=%d units=%d", emitted, len(report.Units))
	}
	if report.Summary.Failure != "clone failed" {
		t.Fatalf("expected failure recorded, got %q", report.Summary.Failure)
	}
	if report.Summary.URL != target.URL || report.Summary.Name != "widget" {
		t.Fatalf("expected repo identity on failed summary, got %+v", report.Summary.RepoInfo)
	}
}

type stagerFunc func(u results.AnalysisUnit) (results.AnalysisUnit, func(), error)

func (f stagerFunc) Stage(u results.AnalysisUnit) (results.AnalysisUnit, func(), error) { return f(u) }

func TestAnalyzer_AnalyzeUnit_StageFailureIsCrash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"m\"\n[dependencies]\na = \"1\"\n")
	tr := fakeTool()
	a := testAnalyzer(tr, housekeeping())

	ws := stagerFunc(func(u results.AnalysisUnit) (results.AnalysisUnit, func(), error) {
		return u, func() {}, errors.New("disk full")
	})
	unit := results.AnalysisUnit{Repository: "demo", Member: "m", Root: dir, ResetManifest: true}
	res := a.AnalyzeUnit(context.Background(), ws, results.RepoInfo{Name: "demo"}, unit)

	if res.Status != results.KindCrashed || !strings.Contains(res.Detail, "disk full") {
		t.Fatalf("expected crashed with stage error, got %+v", res)
	}
	if res.Dependencies != 1 {
		t.Fatalf("expected static counts from the unstaged root, got %d", res.Dependencies)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("tool must not run after a stage failure")
	}
}

func TestAnalyzer_AnalyzeUnit_ResetFailureIsCrash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"m\"\n")
	tr := fakeTool()
	failing := &recordingRunner{fn: func(supervise.Command) supervise.Result {
		return supervise.Result{Status: supervise.StatusExited, ExitCode: 101, Stderr: []byte("error: init failed\n")}
	}}
	a := testAnalyzer(tr, failing)

	ws := stagerFunc(func(u results.AnalysisUnit) (results.AnalysisUnit, func(), error) { return u, func() {}, nil })
	unit := results.AnalysisUnit{Repository: "demo", Member: "m", Root: dir, ResetManifest: true}
	res := a.AnalyzeUnit(context.Background(), ws, results.RepoInfo{Name: "demo"}, unit)

	if res.Status != results.KindCrashed {
		t.Fatalf("expected crashed, got %s", res.Status)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("tool must not run after a failed reset")
	}
	got, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil || !strings.Contains(string(got), `"m"`) {
		t.Fatalf("expected original manifest restored, got %q (err=%v)", got, err)
	}
}

func TestAnalyzer_AnalyzeUnit_PreCommandFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"demo\"\n")
	failing := &recordingRunner{fn: func(supervise.Command) supervise.Result {
		return supervise.Result{Status: supervise.StatusExited, ExitCode: 1}
	}}
	a := testAnalyzer(fakeTool(), failing)

	ws := stagerFunc(func(u results.AnalysisUnit) (results.AnalysisUnit, func(), error) { return u, func() {}, nil })
	res := a.AnalyzeUnit(context.Background(), ws, results.RepoInfo{Name: "demo"}, results.AnalysisUnit{Repository: "demo", Root: dir})

	if res.IsError {
		t.Fatalf("expected success despite failing pre-command, got %+v", res)
	}
	if len(failing.calls) != 1 {
		t.Fatalf("expected one pre-command attempt, got %d", len(failing.calls))
	}
}

func TestAnalyzer_AnalyzeUnit_MalformedOutput(t *testing.T) {
	dir := t.TempDir()
	noisy := &recordingRunner{fn: func(supervise.Command) supervise.Result {
		return supervise.Result{Status: supervise.StatusExited, ExitCode: 101, Stdout: []byte("error[E0433]: failed to resolve\n")}
	}}
	a := testAnalyzer(noisy, housekeeping())

	ws := stagerFunc(func(u results.AnalysisUnit) (results.AnalysisUnit, func(), error) { return u, func() {}, nil })
	res := a.AnalyzeUnit(context.Background(), ws, results.RepoInfo{Name: "demo"}, results.AnalysisUnit{Repository: "demo", Root: dir})

	if res.Status != results.KindMalformedOutput || !res.IsError {
		t.Fatalf("expected malformed output, got %+v", res)
	}
}
