package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/internal/report"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/store"
)

// SummaryOptions holds flags for the summary command.
type SummaryOptions struct {
	*RootOptions
	Window  time.Duration
	Columns []string
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "summary [table]",
		Short: "Summarize a table over a recent window",
		Long: `Print count, missing, min, mean, max and approximate p50/p95 for each
channel over the window ending now. The table defaults to the sampling
table from the config.

Example:
  sensorlog summary SensorData --window 24h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, opts, args)
		},
	}

	cmd.Flags().DurationVar(&opts.Window, "window", 0, "span to summarize (default from config)")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "channels to summarize (default all)")

	return cmd
}

func runSummary(cmd *cobra.Command, opts *SummaryOptions, args []string) error {
	cfg := opts.Config

	name := cfg.Sampling.Table
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return NewExitError(ExitCommandError, "no table given and no sampling table configured")
	}

	window := opts.Window
	if window <= 0 {
		window = cfg.Report.Window.Duration()
	}

	now := time.Now()
	table := schema.Resolve(name, now)

	return withReader(cmd, opts.RootOptions, func(ctx context.Context, r *store.Reader) error {
		names, err := columnNames(ctx, r, table)
		if err != nil {
			return err
		}

		columns := opts.Columns
		if len(columns) == 0 {
			columns = names[1:]
		}

		rep, err := report.Build(ctx, r, table, names[0], columns, window, now)
		if err != nil {
			return queryError("summary", err)
		}

		out := cmd.OutOrStdout()
		if err := report.RenderSummary(out, rep); err != nil {
			return err
		}

		if interval := cfg.Sampling.Interval.Duration(); interval > 0 {
			expected := report.RecordsPerWindow(window, interval, cfg.Sampling.Count)
			fmt.Fprintf(out, "expected about %d records at the configured cadence\n", expected)
		}
		return nil
	})
}
