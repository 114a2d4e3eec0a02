package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"rxbench/internal/config"
	"rxbench/internal/fetcher"
	"rxbench/internal/logging"
	"rxbench/internal/output"
	"rxbench/internal/results"
	"rxbench/internal/runmetrics"
	"rxbench/internal/supervise"
	"rxbench/internal/workspace"
)

func exitCodeForRun(fatal, unresolved, unitErrors bool) int {
	// Exit code contract:
	// 0 = every unit succeeded
	// 1 = some units errored (timeout, crash, malformed output)
	// 2 = some repositories could not be resolved
	// 3 = fatal error (run did not complete)
	if fatal {
		return 3
	}
	if unresolved {
		return 2
	}
	if unitErrors {
		return 1
	}
	return 0
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report, cfg.Output.ReportFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

type Engine struct {
	// Fetcher looks up popularity metadata. Nil disables lookups.
	Fetcher *fetcher.Fetcher
	Logger  *slog.Logger
	Metrics *runmetrics.Recorder

	// Stdout receives the console and --emit streams. Nil means os.Stdout.
	Stdout io.Writer

	// Tool and Runner override the supervisors built from the config.
	// Test seams; nil means a real supervise.Supervisor.
	Tool   workspace.Runner
	Runner workspace.Runner
}

func NewEngine(f *fetcher.Fetcher, logger *slog.Logger) *Engine {
	return &Engine{
		Fetcher: f,
		Logger:  logging.OrDiscard(logger),
		Metrics: runmetrics.New(),
	}
}

func (e *Engine) logger() *slog.Logger {
	return logging.OrDiscard(e.Logger)
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func parseTargets(raw []string) ([]workspace.Target, error) {
	targets := make([]workspace.Target, 0, len(raw))
	for _, s := range raw {
		t, err := workspace.ParseTarget(s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets")
	}
	return targets, nil
}

// supervisors builds the tool supervisor and the housekeeping runner.
func (e *Engine) supervisors(cfg *config.Config) (tool, runner workspace.Runner) {
	tool, runner = e.Tool, e.Runner
	if tool == nil {
		tool = supervise.New(supervise.Options{
			Timeout:        cfg.Supervision.Timeout,
			SampleInterval: cfg.Supervision.SampleInterval,
			GracePeriod:    cfg.Supervision.GracePeriod,
			MaxOutput:      cfg.Supervision.MaxOutputBytes,
			Logger:         e.logger(),
		})
	}
	if runner == nil {
		// Housekeeping (clone, rustup, cargo) shares the unit deadline.
		runner = supervise.New(supervise.Options{
			Timeout:        cfg.Supervision.Timeout,
			SampleInterval: cfg.Supervision.Timeout,
			GracePeriod:    cfg.Supervision.GracePeriod,
			MaxOutput:      cfg.Supervision.MaxOutputBytes,
			Logger:         e.logger(),
		})
	}
	return tool, runner
}

func (e *Engine) newAnalyzer(ctx context.Context, cfg *config.Config, tool, runner workspace.Runner) (*Analyzer, error) {
	a := &Analyzer{
		Tool:       tool,
		Runner:     runner,
		Command:    cfg.Tool.Command,
		PreTimeout: cfg.Supervision.PreCommandTimeout,
		Scratch:    config.SplitCommand(cfg.Tool.ScratchManifest),
		Logger:     e.logger(),
		Metrics:    e.Metrics,
	}
	for _, pc := range cfg.Tool.PreCommands {
		a.PreCommands = append(a.PreCommands, config.SplitCommand(pc))
	}

	if !cfg.Tool.SkipToolchain {
		env, err := workspace.PrepareToolchain(ctx, runner, cfg.Targeting.WorkDir, cfg.Tool.Rustup, cfg.Tool.Rustc, cfg.Tool.Toolchain)
		if err != nil {
			return nil, fmt.Errorf("prepare toolchain: %w", err)
		}
		a.Env = env
		e.logger().Debug("toolchain ready", "toolchain", cfg.Tool.Toolchain, "env", env)
	}
	return a, nil
}

// Run analyzes every configured target and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	runID := uuid.NewString()
	log := e.logger().With("run_id", runID)

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	targets, err := parseTargets(cfg.Targeting.Targets)
	if err != nil {
		log.Error("invalid targets", "err", err)
		return exitCodeForRun(true, false, false)
	}

	if err := os.MkdirAll(cfg.Targeting.WorkDir, 0o755); err != nil {
		log.Error("cannot create work dir", "path", cfg.Targeting.WorkDir, "err", err)
		return exitCodeForRun(true, false, false)
	}

	tool, runner := e.supervisors(cfg)
	analyzer, err := e.newAnalyzer(ctx, cfg, tool, runner)
	if err != nil {
		log.Error("cannot prepare analysis", "err", err)
		return exitCodeForRun(true, false, false)
	}
	analyzer.Logger = log

	resolver := &workspace.Resolver{
		WorkDir: cfg.Targeting.WorkDir,
		Git:     cfg.Targeting.Git,
		Keep:    cfg.Targeting.KeepWorkspace,
		Runner:  runner,
		Logger:  log,
	}
	scheduler, err := NewScheduler(analyzer, resolver)
	if err != nil {
		log.Error("cannot create scheduler", "err", err)
		return exitCodeForRun(true, false, false)
	}

	outMgr, err := setupOutputManager(cfg, e.stdout())
	if err != nil {
		log.Error("cannot create output sinks", "err", err)
		return exitCodeForRun(true, false, false)
	}

	sinkFailed := false
	write := func(v any) {
		if err := outMgr.Write(v); err != nil {
			log.Error("output write failed", "err", err)
			sinkFailed = true
		}
	}

	write(output.Event{Type: output.EventRunStarted, RunID: runID, Repos: len(targets)})

	var pops []results.Popularity
	if !cfg.Runtime.NoMetadata {
		log.Info("looking up repository metadata", "repos", len(targets))
		pops = prefetchPopularity(ctx, e.Fetcher, targets, cfg.Runtime.Concurrency, log)
	}

	resCh, errCh := scheduler.Execute(ctx, targets, pops)
	unresolved, unitErrors := consumeResults(resCh, write)

	var schedErr error
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}
	if schedErr != nil {
		log.Error("run aborted", "err", schedErr)
	}

	if cfg.Output.MetricsFile != "" {
		if err := e.Metrics.WriteFile(cfg.Output.MetricsFile); err != nil {
			log.Error("cannot write metrics file", "err", err)
			sinkFailed = true
		}
	}

	code := exitCodeForRun(schedErr != nil || sinkFailed, unresolved, unitErrors)
	write(output.Event{Type: output.EventRunFinished, RunID: runID, ExitCode: code})
	if err := outMgr.Close(); err != nil {
		log.Error("cannot finish output", "err", err)
		code = exitCodeForRun(true, false, false)
	}
	return code
}

// consumeResults forwards streamed scheduler results to the output sinks.
func consumeResults(resCh <-chan RepoExecutionResult, write func(any)) (unresolved, unitErrors bool) {
	for res := range resCh {
		repo := res.Target.Name
		switch res.Phase {
		case PhaseStarted:
			write(output.Event{Type: output.EventRepoStarted, Repo: repo})
		case PhaseUnit:
			if res.Unit == nil {
				continue
			}
			if res.Unit.IsError {
				unitErrors = true
			}
			write(*res.Unit)
		case PhaseFinished:
			if res.Err != nil {
				unresolved = true
			}
			if res.Report != nil {
				write(res.Report.Summary)
			}
			write(output.Event{Type: output.EventRepoFinished, Repo: repo})
		}
	}
	return unresolved, unitErrors
}
