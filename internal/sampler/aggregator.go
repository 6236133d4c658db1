// Package sampler turns bursts of raw readings into aggregated records and
// runs the logging loop that buffers and flushes them.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/source"
	"github.com/xtxerr/sensorlog/internal/types"
)

var log = logging.Component("sampler")

// DefaultFallbackChannels are the channels whose last value is handed back
// to the source: the sensors that fail transiently.
var DefaultFallbackChannels = []string{"distance", "water_temp", "air_temp", "humidity"}

// Options configures an Aggregator.
type Options struct {
	// Reducer defaults to Mean.
	Reducer Reducer

	// Precision is the number of decimals kept. Negative disables rounding.
	Precision int

	// FallbackChannels are tracked across cycles. Nil means
	// DefaultFallbackChannels.
	FallbackChannels []string

	Metrics *metrics.Metrics

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the options the logger runs with by default.
func DefaultOptions() Options {
	return Options{
		Reducer:   Mean,
		Precision: config.DefaultPrecision,
	}
}

// Aggregator collects one record per cycle.
type Aggregator struct {
	reducer   Reducer
	precision int
	fallbacks []string
	metrics   *metrics.Metrics
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an aggregator.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		reducer:   opts.Reducer,
		precision: opts.Precision,
		fallbacks: opts.FallbackChannels,
		metrics:   opts.Metrics,
		now:       opts.Now,
		sleep:     opts.Sleep,
	}
	if a.reducer == nil {
		a.reducer = Mean
	}
	if a.fallbacks == nil {
		a.fallbacks = DefaultFallbackChannels
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.sleep == nil {
		a.sleep = sleepContext
	}
	return a
}

// Result is the outcome of one cycle.
type Result struct {
	// Table is the physical table the record belongs to.
	Table string

	Record types.Record

	// Fallbacks is the updated set of last known values.
	Fallbacks types.Fallbacks

	// Failed counts raw readings that were missing, per channel index.
	Failed []int
}

// Collect takes count readings from src, pausing interval after each, and
// reduces them to one record for table. table may be the DAILY template;
// it resolves to the day of the record's timestamp.
//
// A reading that fails counts as missing on every channel. Cancelling ctx
// abandons the cycle: no record is produced and ctx.Err() is returned.
//
// interval must exceed the slowest sensor's settle time. That is not
// checked here.
func (a *Aggregator) Collect(ctx context.Context, table schema.Table, src source.Source, last types.Fallbacks, interval time.Duration, count int) (Result, error) {
	if src == nil {
		return Result{}, errors.ErrNoSource
	}
	if count <= 0 {
		return Result{}, fmt.Errorf("sample count %d: %w", count, errors.ErrInvalidInterval)
	}
	if interval < 0 {
		return Result{}, fmt.Errorf("sample interval %s: %w", interval, errors.ErrInvalidInterval)
	}
	width := len(table.Channels())
	if src.Width() != width {
		return Result{}, fmt.Errorf("source has %d channels, table %s has %d: %w",
			src.Width(), table.Name, width, errors.ErrWidthMismatch)
	}

	rows := make([]types.Reading, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rows = append(rows, a.read(ctx, src, last, width))

		if err := a.sleep(ctx, interval); err != nil {
			return Result{}, err
		}
	}

	values, failed := a.reduce(rows, width)

	now := a.now()
	ts := now.Round(time.Second).Unix()
	rec := types.NewRecord(ts, values)

	channels := table.ChannelNames()
	name := schema.Resolve(table.Name, time.Unix(ts, 0))
	for i, n := range failed {
		for j := 0; j < n; j++ {
			a.metrics.SampleFailed(channels[i])
		}
		if v, ok := rec.Value(i); ok {
			a.metrics.SetChannel(table.Name, channels[i], v)
		}
	}

	return Result{
		Table:     name,
		Record:    rec,
		Fallbacks: a.updateFallbacks(last, channels, rec),
		Failed:    failed,
	}, nil
}

// read takes one reading. Failures and short readings degrade to missing
// values.
func (a *Aggregator) read(ctx context.Context, src source.Source, last types.Fallbacks, width int) types.Reading {
	r, err := src.Read(ctx, last.Clone())
	if err != nil {
		log.Debug("reading failed", "error", err)
		return types.EmptyReading(width)
	}
	if len(r) != width {
		log.Warn("reading has wrong width", "got", len(r), "want", width)
		fixed := types.EmptyReading(width)
		copy(fixed, r)
		return fixed
	}
	return r
}

// reduce collapses every column independently, ignoring missing values.
func (a *Aggregator) reduce(rows []types.Reading, width int) ([]float64, []int) {
	values := make([]float64, width)
	failed := make([]int, width)
	present := make([]float64, 0, len(rows))

	for col := 0; col < width; col++ {
		present = present[:0]
		for _, row := range rows {
			if v := row[col]; !types.IsNoValue(v) {
				present = append(present, v)
			} else {
				failed[col]++
			}
		}

		if len(present) == 0 {
			values[col] = types.NoValue()
			continue
		}
		v := a.reducer(present)
		if a.precision >= 0 {
			v = Round(v, a.precision)
		}
		values[col] = v
	}
	return values, failed
}

// updateFallbacks copies last and overwrites each tracked channel that has
// a value in rec. A missing value keeps the previous one.
func (a *Aggregator) updateFallbacks(last types.Fallbacks, channels []string, rec types.Record) types.Fallbacks {
	out := last.Clone()
	for _, name := range a.fallbacks {
		for i, ch := range channels {
			if ch != name {
				continue
			}
			if v, ok := rec.Value(i); ok {
				out[name] = v
			}
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
