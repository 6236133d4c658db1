package sampler

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/source"
	"github.com/xtxerr/sensorlog/internal/types"
)

var nan = math.NaN()

var fixedNow = time.Date(2026, time.October, 19, 12, 0, 0, 400_000_000, time.Local)

func mustTable(t *testing.T, name string, channels ...string) schema.Table {
	t.Helper()
	spec := schema.TableSpec{Names: append([]string{"unix_time"}, channels...)}
	spec.Types = make([]schema.ColumnType, len(spec.Names))
	spec.Types[0] = schema.TypeTimestamp
	for i := 1; i < len(spec.Types); i++ {
		spec.Types[i] = schema.TypeReal
	}
	table, err := spec.Validate(name)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return table
}

func mustStatic(t *testing.T, readings ...types.Reading) *source.Static {
	t.Helper()
	src, err := source.NewStatic(readings...)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return src
}

// testAggregator never really sleeps and records requested pauses.
func testAggregator(opts Options, slept *[]time.Duration) *Aggregator {
	opts.Now = func() time.Time { return fixedNow }
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return ctx.Err()
	}
	if opts.Precision == 0 {
		opts.Precision = 2
	}
	return New(opts)
}

func TestCollect_PHScenario(t *testing.T) {
	var slept []time.Duration
	agg := testAggregator(Options{}, &slept)
	src := mustStatic(t, types.Reading{7.0}, types.Reading{nan}, types.Reading{7.2}, types.Reading{7.1}, types.Reading{nan})

	res, err := agg.Collect(context.Background(), mustTable(t, "SensorData", "pH"), src, nil, time.Second, 5)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	v, ok := res.Record.Value(0)
	if !ok || v != 7.10 {
		t.Errorf("expected pH=7.10, got %v (present=%v)", v, ok)
	}
	if res.Failed[0] != 2 {
		t.Errorf("expected 2 failed samples, got %d", res.Failed[0])
	}
	if len(slept) != 5 {
		t.Errorf("expected 5 pauses, got %d", len(slept))
	}
	for _, d := range slept {
		if d != time.Second {
			t.Errorf("expected 1s pause, got %s", d)
		}
	}
	if res.Record.Timestamp != fixedNow.Round(time.Second).Unix() {
		t.Errorf("unexpected timestamp %d", res.Record.Timestamp)
	}
	if res.Table != "SensorData" {
		t.Errorf("expected table SensorData, got %s", res.Table)
	}
}

func TestCollect_AllMissingChannelIsNoValue(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	src := mustStatic(t, types.Reading{1, nan}, types.Reading{2, nan}, types.Reading{3, nan})

	res, err := agg.Collect(context.Background(), mustTable(t, "T", "a", "b"), src, nil, 0, 3)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if v, ok := res.Record.Value(0); !ok || v != 2 {
		t.Errorf("expected a=2, got %v", v)
	}
	if _, ok := res.Record.Value(1); ok {
		t.Error("channel with no present samples must be absent")
	}
	if res.Record.Values[1].Valid {
		t.Error("absent channel must be stored as NULL")
	}
}

func TestCollect_FailedReadCountsAsMissing(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	src := mustStatic(t, types.Reading{4, 4}, nil, types.Reading{6, 6})

	res, err := agg.Collect(context.Background(), mustTable(t, "T", "a", "b"), src, nil, 0, 3)
	if err != nil {
		t.Fatalf("a failed read is not fatal: %v", err)
	}
	if v, _ := res.Record.Value(1); v != 5 {
		t.Errorf("expected b=5, got %v", v)
	}
	if res.Failed[0] != 1 || res.Failed[1] != 1 {
		t.Errorf("unexpected failure counts %v", res.Failed)
	}
}

func TestCollect_Median(t *testing.T) {
	agg := testAggregator(Options{Reducer: Median}, nil)
	src := mustStatic(t, types.Reading{1}, types.Reading{100}, types.Reading{3}, types.Reading{nan})

	res, err := agg.Collect(context.Background(), mustTable(t, "T", "a"), src, nil, 0, 4)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if v, _ := res.Record.Value(0); v != 3 {
		t.Errorf("expected median 3, got %v", v)
	}
}

func TestCollect_Rounding(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	src := mustStatic(t, types.Reading{1.234}, types.Reading{1.237})

	res, err := agg.Collect(context.Background(), mustTable(t, "T", "a"), src, nil, 0, 2)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if v, _ := res.Record.Value(0); v != 1.24 {
		t.Errorf("expected 1.24, got %v", v)
	}
}

func TestCollect_Fallbacks(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	table := mustTable(t, "SensorData", "pH", "humidity", "distance")
	src := mustStatic(t, types.Reading{7, 50, nan}, types.Reading{7, 52, nan})

	last := types.Fallbacks{"distance": 60, "humidity": 40}
	res, err := agg.Collect(context.Background(), table, src, last, 0, 2)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if res.Fallbacks["humidity"] != 51 {
		t.Errorf("humidity fallback should update to 51, got %v", res.Fallbacks["humidity"])
	}
	if res.Fallbacks["distance"] != 60 {
		t.Errorf("missing distance should keep 60, got %v", res.Fallbacks["distance"])
	}
	if _, ok := res.Fallbacks["pH"]; ok {
		t.Error("pH is not a fallback channel")
	}
	if last["humidity"] != 40 {
		t.Error("input fallbacks must not be modified")
	}
}

func TestCollect_SourceSeesFallbacks(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	var seen float64
	src := source.NewFunc(1, func(_ context.Context, last types.Fallbacks) (types.Reading, error) {
		seen, _ = last.Get("distance")
		return types.Reading{nan}, nil
	})

	if _, err := agg.Collect(context.Background(), mustTable(t, "T", "distance"), src, types.Fallbacks{"distance": 61.5}, 0, 1); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if seen != 61.5 {
		t.Errorf("source should receive last distance 61.5, got %v", seen)
	}
}

func TestCollect_DailyResolvesPerRecord(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	daily := mustTable(t, "DAILY", "pH")
	src := mustStatic(t, types.Reading{7})

	res, err := agg.Collect(context.Background(), daily, src, nil, 0, 1)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Table != "_10_19_2026" {
		t.Errorf("expected _10_19_2026, got %s", res.Table)
	}

	agg.now = func() time.Time { return fixedNow.Add(24 * time.Hour) }
	res, _ = agg.Collect(context.Background(), daily, src, nil, 0, 1)
	if res.Table != "_10_20_2026" {
		t.Errorf("expected rollover to _10_20_2026, got %s", res.Table)
	}
}

func TestCollect_DailyGaugeKeepsLogicalName(t *testing.T) {
	m := metrics.New()
	agg := testAggregator(Options{Metrics: m}, nil)
	daily := mustTable(t, "DAILY", "pH")
	src := mustStatic(t, types.Reading{7})

	for day := 0; day < 2; day++ {
		agg.now = func() time.Time { return fixedNow.Add(time.Duration(day) * 24 * time.Hour) }
		if _, err := agg.Collect(context.Background(), daily, src, nil, 0, 1); err != nil {
			t.Fatalf("Collect: %v", err)
		}
	}

	if n := testutil.CollectAndCount(m.ChannelValue); n != 1 {
		t.Errorf("expected one series across day tables, got %d", n)
	}
	if got := testutil.ToFloat64(m.ChannelValue.WithLabelValues("DAILY", "pH")); got != 7 {
		t.Errorf("expected gauge 7 under DAILY, got %v", got)
	}
}

func TestCollect_Invalid(t *testing.T) {
	agg := testAggregator(Options{}, nil)
	table := mustTable(t, "T", "a")
	src := mustStatic(t, types.Reading{1})
	ctx := context.Background()

	if _, err := agg.Collect(ctx, table, nil, nil, 0, 1); !errors.Is(err, errors.ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
	if _, err := agg.Collect(ctx, table, src, nil, 0, 0); !errors.Is(err, errors.ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
	if _, err := agg.Collect(ctx, mustTable(t, "T", "a", "b"), src, nil, 0, 1); !errors.Is(err, errors.ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
}

func TestCollect_CancelledAbandonsCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agg := testAggregator(Options{}, nil)
	agg.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := agg.Collect(ctx, mustTable(t, "T", "a"), mustStatic(t, types.Reading{1}), nil, time.Second, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseReducer(t *testing.T) {
	if _, err := ParseReducer("median"); err != nil {
		t.Errorf("median: %v", err)
	}
	if _, err := ParseReducer("mode"); !errors.Is(err, errors.ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if Median([]float64{4, 1, 3, 2}) != 2.5 {
		t.Error("even-length median should average the middle values")
	}
}

// recordingFlusher writes nothing and remembers what it drained.
type recordingFlusher struct {
	flushes int
	written []types.Record
	fail    bool
}

func (f *recordingFlusher) Flush(_ context.Context, buf *buffer.WriteBuffer) (int, error) {
	f.flushes++
	batch := buf.DrainAll()
	if f.fail {
		buf.Requeue(batch)
		return 0, errors.ErrWriteFailed
	}
	for _, recs := range batch {
		f.written = append(f.written, recs...)
	}
	return batch.Len(), nil
}

func TestRunner_FlushCadence(t *testing.T) {
	flusher := &recordingFlusher{}
	buf := buffer.New()

	r, err := NewRunner(RunnerConfig{
		Aggregator: testAggregator(Options{}, nil),
		Source:     mustStatic(t, types.Reading{7, 50}),
		Table:      mustTable(t, "SensorData", "pH", "distance"),
		Buffer:     buf,
		Writer:     flusher,
		Count:      2,
		FlushEvery: 2,
		MaxCycles:  5,
		Fallbacks:  types.Fallbacks{"distance": 60},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.Cycles() != 5 {
		t.Errorf("expected 5 cycles, got %d", r.Cycles())
	}
	// Two flushes during the loop plus the final one for the fifth record.
	if flusher.flushes != 3 {
		t.Errorf("expected 3 flushes, got %d", flusher.flushes)
	}
	if len(flusher.written) != 5 {
		t.Errorf("expected 5 records written, got %d", len(flusher.written))
	}
	if !buf.IsEmpty() {
		t.Error("buffer should be empty after shutdown")
	}
	if r.Fallbacks()["distance"] != 50 {
		t.Errorf("fallbacks should thread between cycles, got %v", r.Fallbacks())
	}
}

func TestRunner_FailedFlushKeepsRecords(t *testing.T) {
	flusher := &recordingFlusher{fail: true}
	buf := buffer.New()

	r, err := NewRunner(RunnerConfig{
		Aggregator: testAggregator(Options{}, nil),
		Source:     mustStatic(t, types.Reading{1}),
		Table:      mustTable(t, "T", "a"),
		Buffer:     buf,
		Writer:     flusher,
		Count:      1,
		MaxCycles:  3,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	err = r.Run(context.Background())
	if !errors.Is(err, errors.ErrWriteFailed) {
		t.Errorf("final flush error should surface, got %v", err)
	}
	if buf.Len() != 3 {
		t.Errorf("expected 3 records still pending, got %d", buf.Len())
	}
}

func TestRunner_CancelBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flusher := &recordingFlusher{}
	buf := buffer.New()

	agg := testAggregator(Options{}, nil)
	cycles := 0
	src := source.NewFunc(1, func(context.Context, types.Fallbacks) (types.Reading, error) {
		return types.Reading{1}, nil
	})
	agg.sleep = func(ctx context.Context, d time.Duration) error {
		cycles++
		// Cancel during the third cycle's pause.
		if cycles == 3 {
			cancel()
		}
		return ctx.Err()
	}

	r, err := NewRunner(RunnerConfig{
		Aggregator: agg,
		Source:     src,
		Table:      mustTable(t, "T", "a"),
		Buffer:     buf,
		Writer:     flusher,
		Count:      1,
		FlushEvery: 10,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Cycles() != 2 {
		t.Errorf("expected 2 completed cycles, got %d", r.Cycles())
	}
	if len(flusher.written) != 2 {
		t.Errorf("final flush should write the 2 completed records, got %d", len(flusher.written))
	}
}
