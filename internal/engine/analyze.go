package engine

import (
	"context"
	"log/slog"
	"time"

	"rxbench/internal/logging"
	"rxbench/internal/outcome"
	"rxbench/internal/results"
	"rxbench/internal/runmetrics"
	"rxbench/internal/supervise"
	"rxbench/internal/workspace"
)

// Stager prepares a unit's directory; *workspace.Workspace implements it.
type Stager interface {
	Stage(u results.AnalysisUnit) (results.AnalysisUnit, func(), error)
}

// Analyzer runs the per-unit pipeline: stage, collect static counts, reset
// the manifest for members, run pre-commands, supervise the tool, parse and
// flatten.
type Analyzer struct {
	// Tool supervises the analysis tool itself.
	Tool workspace.Runner
	// Runner executes manifest resets and pre-commands.
	Runner workspace.Runner

	Command     []string
	Env         []string
	PreCommands [][]string
	PreTimeout  time.Duration
	Scratch     []string

	Logger  *slog.Logger
	Metrics *runmetrics.Recorder
}

// AnalyzeUnit always returns exactly one UnitResult. Failures at any step
// become error outcomes; static counts are kept whenever they were computed.
func (a *Analyzer) AnalyzeUnit(ctx context.Context, ws Stager, info results.RepoInfo, unit results.AnalysisUnit) results.UnitResult {
	log := logging.OrDiscard(a.Logger).With("repo", unit.Repository, "unit", unit.Label())

	staged, release, err := ws.Stage(unit)
	if err != nil {
		log.Error("stage failed", "err", err)
		static := workspace.CollectStatic(unit.Root, log)
		return a.finish(log, results.NewUnitResult(info, unit, static, results.Crashed(err.Error())))
	}
	defer release()

	static := workspace.CollectStatic(staged.Root, log)

	if staged.ResetManifest {
		restore, err := workspace.ResetManifest(ctx, a.Runner, staged.Root, a.Scratch)
		if err != nil {
			log.Error("manifest reset failed", "err", err)
			return a.finish(log, results.NewUnitResult(info, unit, static, results.Crashed(err.Error())))
		}
		defer func() {
			if err := restore(); err != nil {
				log.Warn("manifest restore failed", "err", err)
			}
		}()
	}

	a.runPreCommands(ctx, log, staged.Root)

	c := supervise.Command{Dir: staged.Root, Env: a.Env}
	if len(a.Command) > 0 {
		c.Path, c.Args = a.Command[0], a.Command[1:]
	}
	run := a.Tool.Run(ctx, c)
	out, parsed := outcome.Decide(run)
	for _, rej := range parsed.Rejected {
		log.Debug("rejected output line", "line", rej.Line, "err", rej.Err)
	}
	if run.Truncated {
		log.Warn("tool output truncated")
	}

	return a.finish(log, results.NewUnitResult(info, unit, static, out))
}

func (a *Analyzer) finish(log *slog.Logger, r results.UnitResult) results.UnitResult {
	a.Metrics.ObserveUnit(r)
	attrs := []any{"status", r.Status, "elapsed", r.ExecutionTime, "peak_memory", r.PeakMemory}
	if r.IsError {
		log.Warn("unit failed", append(attrs, "detail", r.Detail)...)
	} else {
		log.Info("unit analyzed", attrs...)
	}
	return r
}

// runPreCommands is best effort: failures are logged and analysis goes on.
func (a *Analyzer) runPreCommands(ctx context.Context, log *slog.Logger, dir string) {
	for _, argv := range a.PreCommands {
		if len(argv) == 0 {
			continue
		}
		pctx := ctx
		cancel := func() {}
		if a.PreTimeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, a.PreTimeout)
		}
		err := workspace.RunAll(pctx, a.Runner, dir, a.Env, [][]string{argv})
		cancel()
		if err != nil {
			log.Warn("pre-command failed", "cmd", argv[0], "err", err)
		}
	}
}

// AnalyzeRepository resolves t and analyzes its units in order, calling emit
// after each. On resolution failure it returns a failed summary with no units
// and the error.
func (a *Analyzer) AnalyzeRepository(ctx context.Context, r Resolver, t workspace.Target, pop results.Popularity, emit func(results.UnitResult)) (results.RepositoryReport, error) {
	info := results.NewRepoInfo(t.URL, t.Name, pop)

	ws, err := r.Resolve(ctx, t)
	if err != nil {
		logging.OrDiscard(a.Logger).Error("repository unresolved", "repo", t.Name, "err", err)
		a.Metrics.ObserveRepository(runmetrics.RepoUnresolved)
		return results.RepositoryReport{Summary: results.FailedSummary(info, err)}, err
	}
	defer ws.Close()

	units := make([]results.UnitResult, 0, len(ws.Units))
	for _, u := range ws.Units {
		if ctx.Err() != nil {
			break
		}
		res := a.AnalyzeUnit(ctx, ws, info, u)
		units = append(units, res)
		if emit != nil {
			emit(res)
		}
	}

	a.Metrics.ObserveRepository(runmetrics.RepoAnalyzed)
	summary := results.Summarize(units)
	summary.RepoInfo = info
	return results.RepositoryReport{Summary: summary, Units: units}, nil
}
