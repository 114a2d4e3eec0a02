package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rxbench/internal/config"
	"rxbench/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

// configPath is --config: an explicit config file replacing the
// .rxbench.yaml search.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "rxbench",
	Short: "Benchmark cargo-rusty-ex across Rust repositories",
	Long: `rxbench runs the cargo-rusty-ex metadata analysis over a list of Rust
repositories, supervises every run (deadline, peak memory, output capture) and
aggregates the results per workspace member and per repository.

Examples:
	# Show available commands and global flags
	rxbench --help

	# Analyze two repositories
	rxbench run https://github.com/BurntSushi/ripgrep https://github.com/serde-rs/serde

	# Rebuild per-repository summaries from saved unit results
	rxbench aggregate --in results.json

	# Render a saved run as a LaTeX table
	rxbench report --in results.json --format latex --out table.tex

	# Print build info
	rxbench version

Configuration:
	Flags override RXBENCH_* environment variables, which override the config
	file (.rxbench.yaml in the current directory or $HOME, or --config).
	Config file keys are flag names, e.g. "unit-timeout: 10m".`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (every supervised command, HTTP request and rejected output line)")
	rootCmd.PersistentFlags().StringVar(&configPath, flags.FlagConfig, "", "Config file (default: .rxbench.yaml in CWD or $HOME)")
	rootCmd.PersistentFlags().StringVar(&cfg.Runtime.LogFormat, flags.FlagLogFormat, cfg.Runtime.LogFormat, "Log format on stderr: text|json")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}
