package cli

import (
	"io"

	"github.com/spf13/cobra"

	"rxbench/internal/config"
	"rxbench/internal/flags"
	"rxbench/internal/output"
)

var (
	reportIn     string
	reportOut    string
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render saved results as a Markdown or LaTeX table",
	Long: `Render a saved run as a results table.

The input formats are the ones "rxbench aggregate" accepts. Repository
summaries missing from the input are rebuilt from its unit rows.

Formats:
	markdown  one table per repository summary and per unit, plus lists of
	          unresolved repositories and unit errors
	latex     table rows ready to paste into a tabular environment: one row
	          per repository, then one multirow block per repository with a
	          row per workspace member

The format defaults to the --out extension (.md, .tex) and otherwise to
markdown.

Examples:
  rxbench report --in results.json --format latex --out table.tex
  rxbench report --in results.ndjson > results.md
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderReport(reportIn, reportOut, reportFormat, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func renderReport(in, out, format string, stdin io.Reader, stdout io.Writer) error {
	if format == "" && (out == "" || out == "-") {
		format = output.ReportMarkdown
	}
	format, err := config.ResolveReportFormat(out, format)
	if err != nil {
		return err
	}

	doc, err := readDocument(in, stdin)
	if err != nil {
		return err
	}
	if len(doc.Repositories) == 0 && len(doc.Units) > 0 {
		doc = doc.Reaggregate()
	}

	return writeOutput(out, stdout, func(w io.Writer) error {
		return output.RenderReport(w, doc, format)
	})
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportIn, flags.FlagIn, "", "Saved results to read (- for stdin)")
	reportCmd.Flags().StringVar(&reportOut, flags.FlagOut, "", "Write the table to this path (default: stdout)")
	reportCmd.Flags().StringVar(&reportFormat, flags.FlagFormat, "", "Table format: markdown|latex (default: inferred from --out)")
	_ = reportCmd.MarkFlagRequired(flags.FlagIn)
}
