package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/store"
)

var log = logging.Component("archive")

// Options configures the exporter.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// Concurrency bounds how many tables are exported at once.
	Concurrency int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default export options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
		Concurrency: 2,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Source is the part of store.Reader the exporter reads from.
type Source interface {
	Columns(ctx context.Context, table string) ([]store.Column, error)
	AllRows(ctx context.Context, table string) ([]store.Row, error)
}

// Result describes one exported file.
type Result struct {
	Table string
	Path  string
	Rows  int
}

// Exporter writes tables to Parquet files.
type Exporter struct {
	src  Source
	opts Options
}

// NewExporter creates an exporter reading from src.
func NewExporter(src Source, opts Options) *Exporter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Exporter{src: src, opts: opts}
}

// FilePath returns the archive file of table under dir.
func FilePath(dir, table string) string {
	return filepath.Join(dir, table+".parquet")
}

// Export writes every row of table to <dir>/<table>.parquet, replacing an
// earlier export. The file appears only once it is complete.
func (e *Exporter) Export(ctx context.Context, table, dir string) (Result, error) {
	cols, err := e.src.Columns(ctx, table)
	if err != nil {
		return Result{}, err
	}
	rows, err := e.src.AllRows(ctx, table)
	if err != nil {
		return Result{}, err
	}

	schema, mapping := buildSchema(table, cols)

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, fmt.Errorf("create directory: %w", err)
	}

	path := FilePath(dir, table)
	tmp, err := os.CreateTemp(dir, "."+table+"-*.parquet")
	if err != nil {
		return Result{}, fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRows(tmp, schema, mapping, cols, rows, getCompression(e.opts.Compression)); err != nil {
		tmp.Close()
		return Result{}, err
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Result{}, fmt.Errorf("rename: %w", err)
	}

	log.Info("table exported", "table", table, "rows", len(rows), "path", path)
	return Result{Table: table, Path: path, Rows: len(rows)}, nil
}

// ExportAll exports tables concurrently. It stops at the first failure.
func (e *Exporter) ExportAll(ctx context.Context, tables []string, dir string) ([]Result, error) {
	results := make([]Result, len(tables))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, table := range tables {
		g.Go(func() error {
			res, err := e.Export(ctx, table, dir)
			if err != nil {
				return fmt.Errorf("export %s: %w", table, err)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// buildSchema derives a Parquet schema from store columns. The first
// column is the timestamp and is written as a required INT64; the others
// are optional so NULLs survive. mapping[i] is the store column written
// at Parquet leaf i (group fields are ordered by name).
func buildSchema(table string, cols []store.Column) (*parquet.Schema, []int) {
	group := make(parquet.Group, len(cols))
	for i, c := range cols {
		if i == 0 {
			group[c.Name] = parquet.Leaf(parquet.Int64Type)
			continue
		}
		group[c.Name] = parquet.Optional(leafFor(c.Type))
	}

	schema := parquet.NewSchema(table, group)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c.Name] = i
	}
	fields := schema.Fields()
	mapping := make([]int, len(fields))
	for i, f := range fields {
		mapping[i] = index[f.Name()]
	}
	return schema, mapping
}

func leafFor(storeType string) parquet.Node {
	switch strings.ToUpper(storeType) {
	case "INTEGER":
		return parquet.Leaf(parquet.Int64Type)
	case "TEXT":
		return parquet.String()
	default:
		return parquet.Leaf(parquet.DoubleType)
	}
}

func writeRows(f *os.File, schema *parquet.Schema, mapping []int, cols []store.Column, rows []store.Row, codec compress.Codec) error {
	w := parquet.NewWriter(f, schema, parquet.Compression(codec))

	buf := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		out := make(parquet.Row, len(mapping))
		for leaf, col := range mapping {
			v := toValue(row, col, cols[col].Type)
			out[leaf] = v.Level(0, definitionLevel(col, v), leaf)
		}
		buf = append(buf, out)
	}

	if _, err := w.WriteRows(buf); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// definitionLevel is 1 for a present optional value, 0 for NULL. The
// required timestamp column always has level 0.
func definitionLevel(col int, v parquet.Value) int {
	if col == 0 || v.IsNull() {
		return 0
	}
	return 1
}

func toValue(row store.Row, col int, storeType string) parquet.Value {
	if col == 0 {
		ts, _ := row.Timestamp()
		return parquet.ValueOf(ts)
	}
	if col >= len(row) || row[col] == nil {
		return parquet.NullValue()
	}

	switch strings.ToUpper(storeType) {
	case "INTEGER":
		v, _ := row.Int(col)
		return parquet.ValueOf(v)
	case "TEXT":
		return parquet.ValueOf(fmt.Sprint(row[col]))
	default:
		if v, ok := row.Float(col); ok {
			return parquet.ValueOf(v)
		}
		return parquet.NullValue()
	}
}
