package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rxbench/internal/config"
	"rxbench/internal/cratesio"
	"rxbench/internal/engine"
	"rxbench/internal/fetcher"
	"rxbench/internal/flags"
	gh "rxbench/internal/github"
	"rxbench/internal/logging"
)

// metadataHTTPTimeout bounds each GitHub and crates.io request.
const metadataHTTPTimeout = 30 * time.Second

const runHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	GITHUB_TOKEN (or GH_TOKEN) raises the GitHub rate limit for star lookups.
	Without one, rxbench tries "gh auth token" and otherwise runs
	unauthenticated. A .env file in the current directory is loaded first.

	Every flag can also be set as RXBENCH_<FLAG>, e.g.
	RXBENCH_UNIT_TIMEOUT=10m or RXBENCH_NO_METADATA=true.

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var runCmd = &cobra.Command{
	Use:   "run [TARGET...]",
	Short: "Analyze repositories with cargo-rusty-ex",
	Long: `Analyze each target with cargo-rusty-ex and aggregate the results.

A target is a git clone URL or a local directory containing Cargo.toml.
Repositories are analyzed one at a time, in the order given: first the
repository root, then every workspace member. Members are copied aside and
given a scratch manifest so the tool sees them as standalone packages.

Every unit runs under a deadline (--unit-timeout) while the peak resident
memory of its whole process tree is sampled. A unit that times out, crashes
or prints no parseable metadata is recorded as an error and the run goes on.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write a JSON document or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report / --report-format: write a Markdown or LaTeX table
	- --metrics-file: write run counters in Prometheus text format
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, repo.started, unit.result, repo.summary,
	repo.failed, repo.finished, run.finished). Unit results carry a nested
	"unit" object; repository summaries a nested "summary" object.
	run.started and run.finished share a "run_id"; per-unit and per-repository
	log records carry the same id.

Exit codes:
	0 = every unit analyzed successfully
	1 = some units errored (timeout, crash, malformed output)
	2 = some repositories could not be cloned or read
	3 = fatal error (invalid configuration, toolchain or output failure)

Examples:
  # Analyze a repository and its workspace members
  rxbench run https://github.com/tokio-rs/tokio

  # Read targets from a file and keep a LaTeX table
  rxbench run --targets-file repos.txt --report table.tex

  # Local checkout, custom deadline, no toolchain switching
  rxbench run ./my-crate --unit-timeout 2m --skip-toolchain

  # AI Agent: stream machine-readable events to stdout
  rxbench run --targets-file repos.txt --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runAnalysis(cmd, args))
	},
}

// runAnalysis layers configuration, validates it and runs the engine. It
// returns the process exit code.
func runAnalysis(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()

	if err := config.ApplyLayers(cmd.Flags(), configPath, flags.FlagConfig); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	if len(args) == 0 && len(cfg.Targeting.Targets) == 0 && cfg.Targeting.TargetsFile == "" && cmd.Flags().NFlag() == 0 {
		_ = cmd.Help()
		return 0
	}
	cfg.Targeting.Targets = append(append([]string{}, args...), cfg.Targeting.Targets...)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	logger, err := logging.New(stderr, logging.Options{Verbose: cfg.Runtime.Verbose, Format: cfg.Runtime.LogFormat})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to set up metadata lookups: %v\n", err)
		return 3
	}

	eng := engine.NewEngine(f, logger)
	eng.Stdout = cmd.OutOrStdout()
	return eng.Run(ctx, cfg)
}

// newFetcher returns nil when metadata lookups are disabled. A missing
// GitHub token is not an error.
func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetcher.Fetcher, error) {
	if cfg.Runtime.NoMetadata {
		return nil, nil
	}

	token, source, err := gh.ResolveAuthToken(ctx, cfg.Runtime.GitHubToken)
	switch {
	case err != nil:
		logger.Warn("could not resolve a GitHub token; star lookups run unauthenticated", "err", err)
	case token == "":
		logger.Info("no GitHub token found; star lookups run unauthenticated")
	default:
		logger.Debug("using GitHub token", "source", source)
	}

	client, err := gh.NewClient(ctx, token, gh.WithLogger(logger), gh.WithTimeout(metadataHTTPTimeout))
	if err != nil {
		return nil, err
	}

	crates := cratesio.New(&http.Client{
		Transport: gh.NewLoggingTransport(http.DefaultTransport, logger, "crates.io"),
		Timeout:   metadataHTTPTimeout,
	})

	return fetcher.NewFetcher(fetcher.Options{
		GitHub: client,
		Crates: crates,
		Logger: logger,
	})
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.SetHelpTemplate(runHelpTemplate)

	// Targeting
	runCmd.Flags().StringSliceVar(&cfg.Targeting.Targets, flags.FlagTargets, nil, "Targets to analyze after the positional ones: clone URLs or local directories (repeatable; comma-separated accepted)")
	runCmd.Flags().StringVar(&cfg.Targeting.TargetsFile, flags.FlagTargetsFile, "", "File with one target per line ('#' starts a comment)")
	runCmd.Flags().StringVar(&cfg.Targeting.WorkDir, flags.FlagWorkDir, cfg.Targeting.WorkDir, "Directory for clones and staged member copies")
	runCmd.Flags().BoolVar(&cfg.Targeting.KeepWorkspace, flags.FlagKeepWorkspace, false, "Keep clones on disk after analysis")
	runCmd.Flags().StringVar(&cfg.Targeting.Git, flags.FlagGit, cfg.Targeting.Git, "git executable used for cloning")

	// Tool
	runCmd.Flags().StringSliceVar(&cfg.Tool.Command, flags.FlagTool, cfg.Tool.Command, "Analysis tool command line, run in each unit root (a single value is split on spaces)")
	runCmd.Flags().StringVar(&cfg.Tool.Toolchain, flags.FlagToolchain, cfg.Tool.Toolchain, "rustup toolchain made default before the run (empty = keep the current default)")
	runCmd.Flags().BoolVar(&cfg.Tool.SkipToolchain, flags.FlagSkipToolchain, false, "Skip toolchain selection and the LD_LIBRARY_PATH export")
	runCmd.Flags().StringArrayVar(&cfg.Tool.PreCommands, flags.FlagPreCommand, cfg.Tool.PreCommands, "Command run in the unit root before the tool, best effort (repeatable)")
	runCmd.Flags().StringVar(&cfg.Tool.ScratchManifest, flags.FlagScratchManifest, cfg.Tool.ScratchManifest, "Command that creates the scratch manifest for workspace members")

	// Supervision
	runCmd.Flags().DurationVar(&cfg.Supervision.Timeout, flags.FlagUnitTimeout, cfg.Supervision.Timeout, "Deadline for one tool run")
	runCmd.Flags().DurationVar(&cfg.Supervision.SampleInterval, flags.FlagSampleInterval, cfg.Supervision.SampleInterval, "Memory sampling period")
	runCmd.Flags().DurationVar(&cfg.Supervision.GracePeriod, flags.FlagGracePeriod, cfg.Supervision.GracePeriod, "Wait between SIGTERM and SIGKILL on timeout")
	runCmd.Flags().DurationVar(&cfg.Supervision.PreCommandTimeout, flags.FlagPreCommandTimeout, cfg.Supervision.PreCommandTimeout, "Deadline for each pre-command")
	runCmd.Flags().StringVar(&cfg.Supervision.MaxOutput, flags.FlagMaxOutput, cfg.Supervision.MaxOutput, "Cap on captured tool output per stream, e.g. 64MiB (0 = unlimited)")

	// Output
	runCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	runCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown (.md) or LaTeX (.tex) results table to this path")
	runCmd.Flags().StringVar(&cfg.Output.ReportFormat, flags.FlagReportFormat, "", "Report format: markdown|latex (default: inferred from file extension)")
	runCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	runCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	runCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	runCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	runCmd.Flags().StringVar(&cfg.Output.MetricsFile, flags.FlagMetricsFile, "", "Write run metrics in Prometheus text format to this path")

	// Runtime
	runCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Concurrent metadata lookups (analysis itself is sequential)")
	runCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout for the whole run (0 = none)")
	runCmd.Flags().BoolVar(&cfg.Runtime.NoMetadata, flags.FlagNoMetadata, false, "Skip GitHub star and crates.io download lookups")
	runCmd.Flags().StringVar(&cfg.Runtime.GitHubToken, flags.FlagGitHubToken, "", "GitHub token (default: GITHUB_TOKEN, GH_TOKEN, then gh auth token)")
}
