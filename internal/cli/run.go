package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/loader"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/sampler"
	"github.com/xtxerr/sensorlog/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Table         string
	Interval      time.Duration
	Count         int
	FlushEvery    int
	Cycles        int
	MetricsListen string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log sensor records until interrupted",
		Long: `Declare the configured tables, then repeatedly collect a burst of readings,
reduce it into one record and append it to the sampling table. Records are
flushed every flush_every cycles and once more on shutdown.

Example:
  sensorlog run -c config.yaml
  sensorlog run --table DAILY --interval 6s --count 5 --metrics-listen :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogger(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "table to log into (overrides config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause after each reading (overrides config)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "readings per record (overrides config)")
	cmd.Flags().IntVar(&opts.FlushEvery, "flush-every", 0, "cycles between flushes (overrides config)")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 0, "stop after this many records (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "address serving /metrics (overrides config)")

	return cmd
}

func (o *RunOptions) apply(cmd *cobra.Command, cfg *loader.Config) {
	if o.Table != "" {
		cfg.Sampling.Table = o.Table
	}
	if cmd.Flags().Changed("interval") {
		cfg.Sampling.Interval = loader.Duration(o.Interval)
	}
	if o.Count > 0 {
		cfg.Sampling.Count = o.Count
	}
	if o.FlushEvery > 0 {
		cfg.Sampling.FlushEvery = o.FlushEvery
	}
	if o.MetricsListen != "" {
		cfg.Metrics.Listen = o.MetricsListen
	}
}

func runLogger(cmd *cobra.Command, opts *RunOptions) error {
	cfg := opts.Config
	opts.apply(cmd, cfg)

	if err := loader.Validate(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Every log line of this run carries its id.
	runID := uuid.NewString()
	logging.InitWithHandler(logging.With("run_id", runID).Handler())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := loader.SamplingTable(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "sampling table", err)
	}
	logger := logging.WithContext(logging.ContextWithTable(ctx, table.Name))

	m := metrics.New()
	w, err := openWriter(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	stored, ok := w.Registry().Table(table.Name)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("table %s could not be declared", table.Name))
	}
	if stored.Width() != table.Width() {
		return WrapExitError(ExitCommandError, "sampling table",
			fmt.Errorf("table %s has %d columns in the store, config declares %d: %w",
				table.Name, stored.Width(), table.Width(), errors.ErrSchemaMismatch))
	}

	aggOpts, err := loader.AggregatorOptions(cfg, m)
	if err != nil {
		return WrapExitError(ExitCommandError, "sampling options", err)
	}
	src, err := loader.BuildSource(cfg, len(table.Channels()))
	if err != nil {
		return WrapExitError(ExitCommandError, "reading source", err)
	}

	runner, err := sampler.NewRunner(sampler.RunnerConfig{
		Aggregator:      sampler.New(aggOpts),
		Source:          src,
		Table:           table,
		Buffer:          buffer.New(),
		Writer:          w,
		Interval:        cfg.Sampling.Interval.Duration(),
		Count:           cfg.Sampling.Count,
		FlushEvery:      cfg.Sampling.FlushEvery,
		MaxCycles:       opts.Cycles,
		ShutdownTimeout: cfg.Shutdown.Timeout.Duration(),
		Fallbacks:       loader.InitialFallbacks(cfg),
		Metrics:         m,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "create runner", err)
	}

	logger.Info("sensorlog starting",
		"version", Version,
		"store", cfg.Store.Path,
		"driver", cfg.Store.Driver,
		"source", cfg.Source.Type)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The metrics server stops once logging ends.
		defer cancel()
		return runner.Run(gctx)
	})

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "listen", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "logging failed", err)
	}

	logger.Info("sensorlog stopped", "records", runner.Cycles())
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// openWriter opens the store for writing and declares the configured
// tables. Tables that fail to declare are logged and skipped.
func openWriter(ctx context.Context, cfg *loader.Config, m *metrics.Metrics) (*store.Writer, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	reg := store.NewRegistry(db)
	if err := reg.Load(ctx); err != nil {
		db.Close()
		return nil, WrapExitError(ExitFailure, "load tables", err)
	}
	if err := reg.Declare(ctx, cfg.Tables); err != nil && !errors.IsSchemaError(err) {
		db.Close()
		return nil, WrapExitError(ExitFailure, "declare tables", err)
	}

	return store.NewWriter(db, reg, store.WriterOptions{
		Retry:   loader.RetryPolicy(cfg),
		Metrics: m,
	}), nil
}

// openDB opens the configured store for writing.
func openDB(cfg *loader.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Store.Path, loader.StoreOptions(cfg))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open store %s", cfg.Store.Path), err)
	}
	return db, nil
}
