package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/loader"
	"github.com/xtxerr/sensorlog/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Dir         string
	Compression string
	Concurrency int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [table...]",
		Short: "Write tables to Parquet files",
		Long: `Write every row of the given tables, or of every table in the store, to
<dir>/<table>.parquet. An earlier export of the same table is replaced.

Example:
  sensorlog export --dir /srv/archive
  sensorlog export _10_18_2026 --compression snappy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "output directory (default from config)")
	cmd.Flags().StringVar(&opts.Compression, "compression", "", "none, snappy, zstd, lz4 or gzip (default from config)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 2, "tables exported at once")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, tables []string) error {
	cfg := opts.Config
	if opts.Dir != "" {
		cfg.Archive.Dir = opts.Dir
	}
	if opts.Compression != "" {
		cfg.Archive.Compression = opts.Compression
	}

	return withReader(cmd, opts.RootOptions, func(ctx context.Context, r *store.Reader) error {
		if len(tables) == 0 {
			var err error
			if tables, err = r.Tables(ctx); err != nil {
				return queryError("list tables", err)
			}
		}
		if len(tables) == 0 {
			return NewExitError(ExitCommandError, "store has no tables")
		}

		exportOpts := loader.ArchiveOptions(cfg)
		exportOpts.Concurrency = opts.Concurrency

		results, err := archive.NewExporter(r, exportOpts).ExportAll(ctx, tables, cfg.Archive.Dir)
		if err != nil {
			return queryError("export", err)
		}

		out := cmd.OutOrStdout()
		for _, res := range results {
			fmt.Fprintf(out, "%s\t%d rows\t%s\n", res.Table, res.Rows, res.Path)
		}
		return nil
	})
}
