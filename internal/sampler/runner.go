package sampler

import (
	"context"
	"time"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/source"
	"github.com/xtxerr/sensorlog/internal/types"
)

// Flusher writes everything pending in a buffer.
type Flusher interface {
	Flush(ctx context.Context, buf *buffer.WriteBuffer) (int, error)
}

// RunnerConfig configures the logging loop.
type RunnerConfig struct {
	Aggregator *Aggregator
	Source     source.Source
	Table      schema.Table
	Buffer     *buffer.WriteBuffer
	Writer     Flusher

	Interval time.Duration
	Count    int

	// FlushEvery is the number of cycles between flushes.
	FlushEvery int

	// MaxCycles stops the loop after that many cycles. Zero runs until
	// the context is cancelled.
	MaxCycles int

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration

	// Fallbacks seeds the last known values for the first cycle.
	Fallbacks types.Fallbacks

	Metrics *metrics.Metrics
}

// Runner repeats collect, append and flush. Cycles never overlap: each one
// blocks for Interval x Count before its record is buffered.
type Runner struct {
	cfg       RunnerConfig
	fallbacks types.Fallbacks
	cycles    int
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.ErrNoSource
	}
	if cfg.Buffer == nil || cfg.Writer == nil {
		return nil, errors.NewMissingField("runner buffer and writer")
	}
	if cfg.Count <= 0 || cfg.Interval < 0 {
		return nil, errors.NewValidation("sampling", "count must be positive and interval non-negative")
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = New(DefaultOptions())
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = config.DefaultFlushEvery
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeoutSec * time.Second
	}
	return &Runner{
		cfg:       cfg,
		fallbacks: cfg.Fallbacks.Clone(),
	}, nil
}

// Cycles returns the number of completed cycles.
func (r *Runner) Cycles() int {
	return r.cycles
}

// Fallbacks returns the current last known values.
func (r *Runner) Fallbacks() types.Fallbacks {
	return r.fallbacks.Clone()
}

// Run logs until ctx is cancelled or MaxCycles is reached. A cycle in
// progress when ctx is cancelled is abandoned without writing. Before
// returning, everything still buffered is flushed; the error of that final
// flush is returned.
//
// A failed flush during the loop is logged and its records stay buffered
// for the next one.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg
	log.Info("logging started",
		"table", cfg.Table.Name,
		"interval", cfg.Interval,
		"count", cfg.Count,
		"flush_every", cfg.FlushEvery)

	for cfg.MaxCycles == 0 || r.cycles < cfg.MaxCycles {
		// Cancellation point between cycles.
		if ctx.Err() != nil {
			break
		}

		res, err := cfg.Aggregator.Collect(ctx, cfg.Table, cfg.Source, r.fallbacks, cfg.Interval, cfg.Count)
		if err != nil {
			if ctx.Err() != nil {
				cfg.Metrics.CycleAbandoned()
				log.Info("cycle abandoned", "table", cfg.Table.Name)
				break
			}
			return err
		}

		cfg.Buffer.Append(res.Table, res.Record)
		cfg.Metrics.SetBuffered(cfg.Buffer.Len())
		cfg.Metrics.CycleDone()
		r.fallbacks = res.Fallbacks
		r.cycles++

		log.Debug("cycle done", "table", res.Table, "timestamp", res.Record.Timestamp)

		if r.cycles%cfg.FlushEvery == 0 {
			if _, err := cfg.Writer.Flush(ctx, cfg.Buffer); err != nil {
				log.Error("flush failed", "pending", cfg.Buffer.Len(), "error", err)
			}
		}
	}

	return r.finalFlush()
}

func (r *Runner) finalFlush() error {
	buf := r.cfg.Buffer
	if buf.IsEmpty() {
		log.Info("logging stopped", "cycles", r.cycles)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	n, err := r.cfg.Writer.Flush(ctx, buf)
	if err != nil {
		log.Error("final flush failed", "written", n, "pending", buf.Len(), "error", err)
		return err
	}
	log.Info("logging stopped", "cycles", r.cycles, "written", n)
	return nil
}
