package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/darrencroton/mimic/internal/plot"
)

// ErrNoCatalogues indicates that the glob matched no catalogue files.
var ErrNoCatalogues = errors.New("no catalogue files matched")

// PlotCommand holds configuration for the plot command.
type PlotCommand struct {
	output string
}

// NewPlotCommand creates the plot command.
func NewPlotCommand() *cobra.Command {
	pc := &PlotCommand{}

	cmd := &cobra.Command{
		Use:   "plot <catalogue-glob>",
		Short: "Render summary charts from written catalogues",
		Long: `Plot aggregates one or more catalogue files into an HTML page with
tracked halo counts per snapshot and the final-snapshot mass function.`,
		Args: cobra.ExactArgs(1),
		RunE: pc.execute,
	}

	cmd.Flags().StringVarP(&pc.output, "output", "o", "mimic.html", "output HTML path")

	return cmd
}

func (pc *PlotCommand) execute(cmd *cobra.Command, args []string) error {
	paths, err := filepath.Glob(args[0])
	if err != nil {
		return fmt.Errorf("bad glob %q: %w", args[0], err)
	}

	if len(paths) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCatalogues, args[0])
	}

	data, err := plot.Aggregate(paths)
	if err != nil {
		return err
	}

	err = data.WriteHTML(pc.output)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s from %d catalogue(s)\n", pc.output, len(paths))

	return nil
}
