package flags

// Package flags defines canonical CLI flag names shared across the CLI and the
// viper key bindings. Keeping these as constants avoids drift between Cobra
// flag wiring and the config-file/environment layering.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().DurationVar(&cfg.Supervision.Timeout, flags.FlagUnitTimeout, 0, "...")
//	arg := "--" + flags.FlagUnitTimeout
const (
	// Global
	FlagVerbose   = "verbose"
	FlagConfig    = "config"
	FlagLogFormat = "log-format"

	// Targeting
	FlagTargets       = "targets"
	FlagTargetsFile   = "targets-file"
	FlagWorkDir       = "work-dir"
	FlagKeepWorkspace = "keep-workspace"
	FlagGit           = "git"

	// Tool
	FlagTool            = "tool"
	FlagToolchain       = "toolchain"
	FlagSkipToolchain   = "skip-toolchain"
	FlagPreCommand      = "pre-command"
	FlagScratchManifest = "scratch-manifest"

	// Supervision
	FlagUnitTimeout       = "unit-timeout"
	FlagSampleInterval    = "sample-interval"
	FlagGracePeriod       = "grace-period"
	FlagPreCommandTimeout = "pre-command-timeout"
	FlagMaxOutput         = "max-output"

	// Output
	FlagConsoleFormat = "console-format"
	FlagReport        = "report"
	FlagReportFormat  = "report-format"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagEmit          = "emit"
	FlagNoConsole     = "no-console"
	FlagMetricsFile   = "metrics-file"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagNoMetadata  = "no-metadata"
	FlagGitHubToken = "github-token"

	// aggregate / report
	FlagIn     = "in"
	FlagFormat = "format"
)
