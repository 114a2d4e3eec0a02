package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rxbench/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func printVersion(w io.Writer) {
	version, commit, date := BuildInfo()
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s %s\ncommit:    %s\nbuilt:     %s\ntoolchain: %s\n",
		bold.Sprint("rxbench"), version, commit, date, config.DefaultToolchain)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
