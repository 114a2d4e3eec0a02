package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/run.go
	// - config file and env layering in ApplyLayers (loader.go)
	Targeting   Targeting
	Tool        Tool
	Supervision Supervision
	Output      Output
	Runtime     Runtime
}

type Targeting struct {
	// Targets are clone URLs or local directories, in analysis order
	// (positional args and --targets). Values may be comma-separated.
	Targets []string

	// TargetsFile lists one target per line; blank lines and lines starting
	// with '#' are ignored (see --targets-file).
	TargetsFile string

	// WorkDir holds clones and staged member copies (see --work-dir).
	WorkDir string

	// KeepWorkspace leaves clones on disk after analysis (see --keep-workspace).
	KeepWorkspace bool

	// Git is the git executable used for cloning (see --git).
	Git string
}

type Tool struct {
	// Command is the analysis tool argv, run in each unit root (see --tool).
	// A single string is split on whitespace.
	Command []string

	// Toolchain is the rustup toolchain selected before the run (see --toolchain).
	// Empty skips `rustup default`.
	Toolchain string

	// SkipToolchain disables toolchain preparation entirely, including the
	// LD_LIBRARY_PATH export (see --skip-toolchain).
	SkipToolchain bool

	// PreCommands run in the unit root before the tool, best effort
	// (see --pre-command). Each entry is split on whitespace.
	PreCommands []string

	// ScratchManifest creates the disposable manifest for member units
	// (see --scratch-manifest).
	ScratchManifest string

	Rustup string
	Rustc  string
}

type Supervision struct {
	// Timeout is the per-unit deadline (see --unit-timeout). Must be > 0.
	Timeout time.Duration

	// SampleInterval is the memory sampling period (see --sample-interval).
	SampleInterval time.Duration

	// GracePeriod is how long to wait after SIGTERM and after SIGKILL
	// (see --grace-period).
	GracePeriod time.Duration

	// PreCommandTimeout bounds each pre-run command (see --pre-command-timeout).
	PreCommandTimeout time.Duration

	// MaxOutput caps captured bytes per stream, e.g. "64MiB" (see --max-output).
	// "0" or empty means unlimited.
	MaxOutput string

	// MaxOutputBytes is MaxOutput parsed by Validate.
	MaxOutputBytes int64
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// Report writes a rendered report to this path (see --report).
	Report string

	// ReportFormat selects the report format (see --report-format).
	// Allowed values: markdown, latex. If empty, it is inferred from the --report extension.
	ReportFormat string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// MetricsFile writes run metrics in Prometheus text format (see --metrics-file).
	MetricsFile string
}

type Runtime struct {
	// Concurrency bounds parallel metadata lookups (see --concurrency).
	// Analysis itself is always sequential. Must be >= 1.
	Concurrency int

	// Timeout is the global timeout for the whole run (see --timeout).
	// Zero means no global limit.
	Timeout time.Duration

	// NoMetadata skips GitHub and crates.io lookups (see --no-metadata).
	NoMetadata bool

	// GitHubToken authenticates GitHub lookups (see --github-token).
	// Optional; resolved from the environment or gh when empty.
	GitHubToken string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is the stderr log format (see --log-format).
	// Allowed values: text, json.
	LogFormat string
}

// DefaultToolchain is the nightly the analysis tool is built against.
const DefaultToolchain = "nightly-2025-02-20"

func New() *Config {
	return &Config{
		Targeting: Targeting{
			WorkDir: filepath.Join(os.TempDir(), "rxbench"),
			Git:     "git",
		},
		Tool: Tool{
			Command:         []string{"cargo-rusty-ex", "--print-metadata"},
			Toolchain:       DefaultToolchain,
			PreCommands:     []string{"cargo clean"},
			ScratchManifest: "cargo init --name temp --vcs none",
			Rustup:          "rustup",
			Rustc:           "rustc",
		},
		Supervision: Supervision{
			Timeout:           600 * time.Second,
			SampleInterval:    10 * time.Millisecond,
			GracePeriod:       5 * time.Second,
			PreCommandTimeout: 5 * time.Minute,
			MaxOutput:         "64MiB",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 4,
			LogFormat:   "text",
		},
	}
}

func (c *Config) Validate() error {
	c.Targeting.Targets = splitCommaList(c.Targeting.Targets)
	if c.Targeting.TargetsFile != "" {
		fromFile, err := ReadTargetsFile(c.Targeting.TargetsFile)
		if err != nil {
			return err
		}
		c.Targeting.Targets = append(c.Targeting.Targets, fromFile...)
		c.Targeting.TargetsFile = ""
	}
	if len(c.Targeting.Targets) == 0 {
		return errors.New("at least one target must be provided (argument, --targets or --targets-file)")
	}
	if strings.TrimSpace(c.Targeting.WorkDir) == "" {
		return errors.New("--work-dir must not be empty")
	}
	workDir, err := filepath.Abs(c.Targeting.WorkDir)
	if err != nil {
		return fmt.Errorf("--work-dir: %w", err)
	}
	c.Targeting.WorkDir = workDir
	if c.Targeting.Git == "" {
		c.Targeting.Git = "git"
	}

	// Tool validation
	c.Tool.Command = splitArgv(c.Tool.Command)
	if len(c.Tool.Command) == 0 {
		return errors.New("--tool must not be empty")
	}
	c.Tool.PreCommands = trimEmpty(c.Tool.PreCommands)
	if len(strings.Fields(c.Tool.ScratchManifest)) == 0 {
		return errors.New("--scratch-manifest must not be empty")
	}
	c.Tool.Toolchain = strings.TrimSpace(c.Tool.Toolchain)

	// Supervision validation
	if c.Supervision.Timeout <= 0 {
		return errors.New("--unit-timeout must be > 0")
	}
	if c.Supervision.SampleInterval <= 0 {
		return errors.New("--sample-interval must be > 0")
	}
	if c.Supervision.GracePeriod <= 0 {
		return errors.New("--grace-period must be > 0")
	}
	if c.Supervision.PreCommandTimeout <= 0 {
		return errors.New("--pre-command-timeout must be > 0")
	}
	n, err := ParseByteSize(c.Supervision.MaxOutput)
	if err != nil {
		return fmt.Errorf("invalid --max-output value: %w", err)
	}
	c.Supervision.MaxOutputBytes = n

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	c.Output.Emit = splitCommaList(c.Output.Emit)
	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	if c.Output.Report != "" {
		f, err := ResolveReportFormat(c.Output.Report, c.Output.ReportFormat)
		if err != nil {
			return err
		}
		c.Output.ReportFormat = f
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "text"
	}
	if c.Runtime.LogFormat != "text" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Runtime.LogFormat)
	}

	return nil
}

// ResolveReportFormat normalizes format, inferring it from the extension of
// path when empty.
func ResolveReportFormat(path, format string) (string, error) {
	format = normalizeEnumValue(format)
	switch format {
	case "md":
		format = "markdown"
	case "tex":
		format = "latex"
	}
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown":
			return "markdown", nil
		case ".tex":
			return "latex", nil
		default:
			return "", fmt.Errorf("cannot infer report format from %q; use --report-format", path)
		}
	}
	if format != "markdown" && format != "latex" {
		return "", fmt.Errorf("unsupported report format: %s (must be one of: markdown, latex)", format)
	}
	return format, nil
}

// ParseByteSize accepts humanized sizes ("64MiB", "10 MB", "4096").
// Empty means zero.
func ParseByteSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%q is too large", raw)
	}
	return int64(n), nil
}

// ReadTargetsFile reads one target per line.
func ReadTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return out, nil
}

// SplitCommand splits a command line on whitespace. No quoting is supported.
func SplitCommand(s string) []string {
	return strings.Fields(s)
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// splitArgv accepts either a ready argv or a single command string.
func splitArgv(values []string) []string {
	values = trimEmpty(values)
	if len(values) == 1 {
		return strings.Fields(values[0])
	}
	return values
}

func trimEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
