package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/store"
)

// memSource serves fixed tables.
type memSource struct {
	cols map[string][]store.Column
	rows map[string][]store.Row
}

func (s *memSource) Columns(_ context.Context, table string) ([]store.Column, error) {
	cols, ok := s.cols[table]
	if !ok {
		return nil, errors.NewTableNotFound(table)
	}
	return cols, nil
}

func (s *memSource) AllRows(_ context.Context, table string) ([]store.Row, error) {
	return s.rows[table], nil
}

func testSource() *memSource {
	return &memSource{
		cols: map[string][]store.Column{
			"SensorData": {
				{Name: "unix_time", Type: "REAL"},
				{Name: "pH", Type: "REAL"},
				{Name: "count", Type: "INTEGER"},
				{Name: "note", Type: "TEXT"},
			},
		},
		rows: map[string][]store.Row{
			"SensorData": {
				{100.0, 7.1, int64(1), "a"},
				{200.0, nil, int64(2), nil},
				{300.0, 7.3, nil, "c"},
				{400.0, 7.4, int64(4), "d"},
			},
		},
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(testSource(), DefaultOptions())

	res, err := e.Export(context.Background(), "SensorData", dir)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, filepath.Join(dir, "SensorData.parquet"), res.Path)

	cols, err := Columns(res.Path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"unix_time", "pH", "count", "note"}, cols)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestExport_UnknownTable(t *testing.T) {
	e := NewExporter(testSource(), DefaultOptions())
	_, err := e.Export(context.Background(), "Missing", t.TempDir())
	assert.ErrorIs(t, err, errors.ErrTableNotFound)
}

func TestExportAll(t *testing.T) {
	src := testSource()
	src.cols["Tank"] = []store.Column{{Name: "unix_time", Type: "REAL"}, {Name: "level", Type: "REAL"}}
	src.rows["Tank"] = []store.Row{{100.0, 1.5}}

	results, err := NewExporter(src, Options{Compression: CompressionSnappy, Concurrency: 2}).
		ExportAll(context.Background(), []string{"SensorData", "Tank"}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Tank", results[1].Table)
	assert.Equal(t, 1, results[1].Rows)
}

func TestQuery_Range(t *testing.T) {
	ctx := context.Background()
	res, err := NewExporter(testSource(), DefaultOptions()).Export(ctx, "SensorData", t.TempDir())
	require.NoError(t, err)

	q, err := OpenQuery()
	require.NoError(t, err)
	defer q.Close()

	n, err := q.Count(ctx, res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	rows, err := q.Range(ctx, res.Path, "unix_time", 100, 400, []string{"unix_time", "pH", "note"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ts, _ := rows[0].Timestamp()
	assert.Equal(t, int64(200), ts)
	assert.Nil(t, rows[0][1], "NULL survives the round trip")
	assert.Nil(t, rows[0][2])

	ts, _ = rows[1].Timestamp()
	assert.Equal(t, int64(300), ts)
	ph, ok := rows[1].Float(1)
	assert.True(t, ok)
	assert.InDelta(t, 7.3, ph, 1e-9)
	assert.Equal(t, "c", rows[1][2])
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	res, err := NewExporter(testSource(), DefaultOptions()).Export(ctx, "SensorData", t.TempDir())
	require.NoError(t, err)

	q, err := OpenQuery()
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Range(ctx, res.Path, "unix_time", 0, 1000, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyColumns)

	_, err = q.Range(ctx, res.Path, "unix_time", 0, 1000, []string{"salinity"})
	assert.ErrorIs(t, err, errors.ErrColumnNotFound)

	_, err = q.Range(ctx, filepath.Join(t.TempDir(), "none.parquet"), "unix_time", 0, 1000, []string{"pH"})
	assert.ErrorIs(t, err, errors.ErrTableNotFound)
}

func TestParseCompressionType(t *testing.T) {
	assert.Equal(t, CompressionZstd, ParseCompressionType("ZSTD"))
	assert.Equal(t, CompressionNone, ParseCompressionType(""))
	assert.Equal(t, CompressionGzip, ParseCompressionType("gzip"))
}
