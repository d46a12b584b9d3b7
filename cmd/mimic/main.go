// Package main provides the entry point for the mimic CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darrencroton/mimic/cmd/mimic/commands"
	"github.com/darrencroton/mimic/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mimic",
		Short: "Mimic - Dark-matter halo tracking for merger-tree files",
		Long: `Mimic walks the merger trees of an N-body simulation and produces
catalogues of tracked halos with full lifecycle histories.

Commands:
  run       Process a range of tree files into catalogues
  plot      Render summary charts from written catalogues`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	// Add commands.
	rootCmd.AddCommand(commands.NewRunCommand(&verbose, &quiet))
	rootCmd.AddCommand(commands.NewPlotCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "mimic %s (commit: %s)\n", version.Version, version.GitCommit)
		},
	}
}
