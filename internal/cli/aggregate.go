package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rxbench/internal/flags"
	"rxbench/internal/output"
)

var (
	aggregateIn  string
	aggregateOut string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Rebuild per-repository summaries from saved unit results",
	Long: `Read saved unit results and recompute one summary per repository.

Input may be a run document written by "rxbench run --out file.json", an
NDJSON event stream (--out file.ndjson), or a plain JSON array of unit rows
(optionally nested one array per repository). Missing metrics ("N/A" or null)
stay unavailable. Units are grouped by consecutive repository URL; the first
unit of each group is taken as the repository root.

The result is a run document: {"repositories": [...], "units": [...]}.

Examples:
  rxbench aggregate --in results.ndjson --out results.json
  rxbench aggregate --in units.json | jq '.repositories'
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return aggregate(aggregateIn, aggregateOut, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func aggregate(in, out string, stdin io.Reader, stdout io.Writer) error {
	doc, err := readDocument(in, stdin)
	if err != nil {
		return err
	}
	return writeOutput(out, stdout, doc.Reaggregate().WriteJSON)
}

// readDocument reads path, or stdin when path is "-".
func readDocument(path string, stdin io.Reader) (output.Document, error) {
	if path == "-" {
		doc, err := output.ReadDocument(stdin)
		if err != nil {
			return output.Document{}, fmt.Errorf("read stdin: %w", err)
		}
		return doc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return output.Document{}, err
	}
	defer f.Close()
	doc, err := output.ReadDocument(f)
	if err != nil {
		return output.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return doc, nil
}

// writeOutput runs write against path, or stdout when path is empty or "-".
func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	aggregateCmd.Flags().StringVar(&aggregateIn, flags.FlagIn, "", "Saved results to read (- for stdin)")
	aggregateCmd.Flags().StringVar(&aggregateOut, flags.FlagOut, "", "Write the document to this path (default: stdout)")
	_ = aggregateCmd.MarkFlagRequired(flags.FlagIn)
}
