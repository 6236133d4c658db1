package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/report"
)

// ArchiveRangeOptions holds flags for the archive-range command.
type ArchiveRangeOptions struct {
	*RootOptions
	Columns         []string
	TimestampColumn string
}

// NewArchiveRangeCommand creates the archive-range command.
func NewArchiveRangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveRangeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive-range <file> <start> <end>",
		Short: "Print rows of an exported Parquet file strictly between two times",
		Long: `Query a file written by export with the same semantics as "query range".
Times are unix seconds or RFC 3339.

Example:
  sensorlog archive-range archive/SensorData.parquet 1700000000 1700086400 --columns unix_time,pH`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveRange(cmd, opts, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "columns to print (default all)")
	cmd.Flags().StringVar(&opts.TimestampColumn, "timestamp-column", config.DefaultTimestampColumn, "column holding unix seconds")

	return cmd
}

func runArchiveRange(cmd *cobra.Command, opts *ArchiveRangeOptions, args []string) error {
	path := args[0]
	start, end, err := parseBounds(args[1], args[2])
	if err != nil {
		return err
	}

	columns := opts.Columns
	if len(columns) == 0 {
		if columns, err = archive.Columns(path); err != nil {
			return queryError("read archive schema", err)
		}
		columns = timestampFirst(columns, opts.TimestampColumn)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	q, err := archive.OpenQuery()
	if err != nil {
		return WrapExitError(ExitFailure, "open query engine", err)
	}
	defer q.Close()

	rows, err := q.Range(ctx, path, opts.TimestampColumn, start, end, columns)
	if err != nil {
		return queryError("archive range", err)
	}
	return report.RenderRows(cmd.OutOrStdout(), columns, rows)
}

// timestampFirst moves ts to the front; archive schemas list columns by name.
func timestampFirst(columns []string, ts string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == ts {
			out = append([]string{c}, out...)
			continue
		}
		out = append(out, c)
	}
	return out
}
