package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/report"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/shell"
	"github.com/xtxerr/sensorlog/internal/store"
)

// QueryOptions holds flags for the query commands.
type QueryOptions struct {
	*RootOptions
	Columns []string
}

// NewQueryCommand creates the query command and its subcommands.
// Results are printed as CSV.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read rows from the store",
		Long: `Read rows from a table while a logger may be writing to it. The DAILY
alias names today's table. Rows are printed as CSV with a header line.`,
	}

	all := &cobra.Command{
		Use:   "all <table>",
		Short: "Print every row in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd, opts.RootOptions, func(ctx context.Context, r *store.Reader) error {
				table := schema.Resolve(args[0], time.Now())
				names, err := columnNames(ctx, r, table)
				if err != nil {
					return err
				}
				rows, err := r.AllRows(ctx, table)
				if err != nil {
					return queryError("query all", err)
				}
				return report.RenderRows(cmd.OutOrStdout(), names, rows)
			})
		},
	}

	recent := &cobra.Command{
		Use:   "recent <table> <count>",
		Short: "Print the newest rows, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "count", errors.ErrInvalidCount)
			}
			return withReader(cmd, opts.RootOptions, func(ctx context.Context, r *store.Reader) error {
				table := schema.Resolve(args[0], time.Now())
				names, err := columnNames(ctx, r, table)
				if err != nil {
					return err
				}
				rows, err := r.MostRecent(ctx, table, count)
				if err != nil {
					return queryError("query recent", err)
				}
				return report.RenderRows(cmd.OutOrStdout(), names, rows)
			})
		},
	}

	rangeCmd := &cobra.Command{
		Use:   "range <table> <start> <end>",
		Short: "Print rows strictly between two times",
		Long: `Print the selected columns of every row whose timestamp lies strictly
between start and end, oldest first. Times are unix seconds or RFC 3339.

Example:
  sensorlog query range SensorData 1700000000 1700086400 --columns unix_time,pH`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseBounds(args[1], args[2])
			if err != nil {
				return err
			}
			return withReader(cmd, opts.RootOptions, func(ctx context.Context, r *store.Reader) error {
				table := schema.Resolve(args[0], time.Now())
				names := opts.Columns
				if len(names) == 0 {
					if names, err = columnNames(ctx, r, table); err != nil {
						return err
					}
				}
				rows, err := r.RangeByTime(ctx, table, start, end, names)
				if err != nil {
					return queryError("query range", err)
				}
				return report.RenderRows(cmd.OutOrStdout(), names, rows)
			})
		},
	}
	rangeCmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "columns to print (default all)")

	cmd.AddCommand(all, recent, rangeCmd)
	return cmd
}

// withReader opens a reader for the duration of fn.
func withReader(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, r *store.Reader) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := opts.openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	return fn(ctx, r)
}

func columnNames(ctx context.Context, r *store.Reader, table string) ([]string, error) {
	cols, err := r.Columns(ctx, table)
	if err != nil {
		return nil, queryError("columns", err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

func parseBounds(startArg, endArg string) (int64, int64, error) {
	start, err := shell.ParseTime(startArg)
	if err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "start", err)
	}
	end, err := shell.ParseTime(endArg)
	if err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "end", err)
	}
	return start, end, nil
}
