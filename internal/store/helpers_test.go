package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/types"
)

// sensorData is the table used throughout the store tests.
var sensorData = schema.TableSpec{
	Names: []string{"unix_time", "pH", "TDS", "humidity", "air_temp", "water_temp", "distance"},
	Types: []schema.ColumnType{
		schema.TypeTimestamp,
		schema.TypeReal, schema.TypeReal, schema.TypeReal,
		schema.TypeReal, schema.TypeReal, schema.TypeReal,
	},
}

// testWriter opens a fresh store with SensorData declared.
func testWriter(t *testing.T, driver string) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor_db.db")

	db, err := Open(path, Options{Driver: driver})
	require.NoError(t, err)

	reg := NewRegistry(db)
	require.NoError(t, reg.Declare(context.Background(), map[string]schema.TableSpec{
		"SensorData": sensorData,
	}))

	w := NewWriter(db, reg, WriterOptions{Retry: RetryPolicy{
		MaxAttempts: 2,
		MinInterval: time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
	}})
	t.Cleanup(func() { w.Close() })
	return w, path
}

// testReader opens a read connection next to a writer.
func testReader(t *testing.T, path, driver string) *Reader {
	t.Helper()
	r, err := OpenReader(path, Options{Driver: driver})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// sensorRecord builds a SensorData record whose values are derived from ts.
func sensorRecord(ts int64) types.Record {
	base := float64(ts) / 100
	return types.NewRecord(ts, []float64{7 + base/10, 400 + base, 55, 21.5, 19.25, 60 - base})
}

// writeRecords appends and flushes records for the given timestamps.
func writeRecords(t *testing.T, w *Writer, table string, stamps ...int64) {
	t.Helper()
	buf := buffer.New()
	for _, ts := range stamps {
		buf.Append(table, sensorRecord(ts))
	}
	n, err := w.Flush(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, len(stamps), n)
	require.True(t, buf.IsEmpty())
}

// timestamps extracts the first column of rows.
func timestamps(t *testing.T, rows []Row) []int64 {
	t.Helper()
	out := make([]int64, len(rows))
	for i, row := range rows {
		ts, ok := row.Timestamp()
		require.True(t, ok, "row %d has no timestamp: %v", i, row)
		out[i] = ts
	}
	return out
}
