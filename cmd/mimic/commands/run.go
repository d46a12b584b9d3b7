// Package commands implements CLI command handlers for mimic.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/darrencroton/mimic/internal/config"
	"github.com/darrencroton/mimic/internal/pipeline"
	"github.com/darrencroton/mimic/pkg/physics"
)

// timeRounding trims the summary duration to a readable precision.
const timeRounding = time.Millisecond

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath string
	workers    int
	debugArena bool
	modules    []string

	verbose *bool
	quiet   *bool
}

// NewRunCommand creates the run command.
func NewRunCommand(verbose, quiet *bool) *cobra.Command {
	rc := &RunCommand{verbose: verbose, quiet: quiet}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a range of tree files into halo catalogues",
		Long: `Run loads merger-tree files, tracks every halo through its lifecycle
and writes one catalogue per input file.

Configuration comes from a YAML file (default .mimic.yaml in the working
directory) plus MIMIC_* environment overrides.`,
		RunE: rc.execute,
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&rc.workers, "workers", "w", 0, "override pipeline.workers")
	cmd.Flags().BoolVar(&rc.debugArena, "debug-arena", false, "guard arena allocations")
	cmd.Flags().StringSliceVarP(&rc.modules, "modules", "m", nil,
		fmt.Sprintf("physics modules to run (available: %v)", physics.DefaultRegistry().Names()))

	return cmd
}

func (rc *RunCommand) execute(cmd *cobra.Command, _ []string) error {
	logger := rc.buildLogger()

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}

	if rc.workers > 0 {
		cfg.Pipeline.Workers = rc.workers
	}

	if rc.debugArena {
		cfg.Pipeline.DebugArena = true
	}

	if len(rc.modules) > 0 {
		cfg.Physics.Modules = rc.modules
	}

	runner, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	summary, err := runner.Run(cmd.Context())
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "run failed: %v\n", err)

		return err
	}

	if !*rc.quiet {
		rc.printSummary(cmd.OutOrStdout(), summary)
	}

	return nil
}

func (rc *RunCommand) buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if *rc.verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if *rc.quiet {
		out = io.Discard
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return logger
}

func (rc *RunCommand) printSummary(w io.Writer, s *pipeline.Summary) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRow(table.Row{"Files processed", s.Files})
	tbl.AppendRow(table.Row{"Trees built", s.Trees})
	tbl.AppendRow(table.Row{"Halos tracked", humanize.Comma(s.Halos)})
	tbl.AppendRow(table.Row{"Fresh halos", humanize.Comma(s.FreshHalos)})
	tbl.AppendRow(table.Row{"Mergers", humanize.Comma(s.Mergers)})
	tbl.AppendRow(table.Row{"Peak arena", humanize.Bytes(uint64(s.PeakArena))})
	tbl.AppendRow(table.Row{"Duration", s.Duration.Round(timeRounding)})
	tbl.Render()

	if len(s.SkippedFiles) > 0 {
		color.New(color.FgYellow).Fprintf(w, "skipped files: %v\n", s.SkippedFiles)
	} else {
		color.New(color.FgGreen).Fprintln(w, "all files processed")
	}
}
