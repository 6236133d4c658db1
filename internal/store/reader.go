package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/schema"
)

// Row is one stored row, positionally aligned to the selected columns.
// Values are float64, int64, string or nil.
type Row []any

// Float returns column i as a float and whether it holds a number.
func (r Row) Float(i int) (float64, bool) {
	if i < 0 || i >= len(r) {
		return 0, false
	}
	switch v := r[i].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns column i truncated to an integer.
func (r Row) Int(i int) (int64, bool) {
	f, ok := r.Float(i)
	return int64(f), ok
}

// Timestamp interprets the first column as unix seconds.
func (r Row) Timestamp() (int64, bool) {
	return r.Int(0)
}

// Time returns the first column as a time.Time.
func (r Row) Time() time.Time {
	ts, _ := r.Timestamp()
	return time.Unix(ts, 0)
}

// Reader answers read-only queries against a store file. It never creates
// tables; queries against a missing table fail with ErrTableNotFound.
//
// Reader is safe for concurrent use.
type Reader struct {
	db *DB
}

// OpenReader opens a read-only connection to the store at path.
func OpenReader(path string, opts Options) (*Reader, error) {
	opts.ReadOnly = true
	db, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

// NewReader wraps an already open connection.
func NewReader(db *DB) *Reader {
	return &Reader{db: db}
}

// Close releases the read connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Path returns the store file path.
func (r *Reader) Path() string {
	return r.db.Path()
}

// Tables lists the tables in the store.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	return r.db.tableNames(ctx)
}

// Columns returns the physical columns of table in declared order.
func (r *Reader) Columns(ctx context.Context, table string) ([]Column, error) {
	if err := schema.ValidateName(table); err != nil {
		return nil, err
	}
	return r.db.tableColumns(ctx, table)
}

// AllRows returns every row of table in insertion order.
func (r *Reader) AllRows(ctx context.Context, table string) ([]Row, error) {
	if _, err := r.Columns(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", schema.Quote(table))
	return r.query(ctx, query)
}

// MostRecent returns up to count rows of table, newest first.
func (r *Reader) MostRecent(ctx context.Context, table string, count int) ([]Row, error) {
	if count <= 0 {
		return nil, fmt.Errorf("most recent %d: %w", count, errors.ErrInvalidCount)
	}

	cols, err := r.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC, rowid DESC LIMIT ?",
		schema.Quote(table), schema.Quote(cols[0].Name))
	return r.query(ctx, query, count)
}

// RangeByTime returns the given columns of every row whose timestamp lies
// strictly between start and end, in ascending time order. Columns must be
// a non-empty list of existing column names.
func (r *Reader) RangeByTime(ctx context.Context, table string, start, end int64, columns []string) ([]Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("range of %s: %w", table, errors.ErrEmptyColumns)
	}

	cols, err := r.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[strings.ToLower(c.Name)] = true
	}

	quoted := make([]string, len(columns))
	for i, name := range columns {
		if !known[strings.ToLower(name)] {
			return nil, errors.NewColumnNotFound(table, name)
		}
		quoted[i] = schema.Quote(name)
	}

	ts := schema.Quote(cols[0].Name)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > ? AND %s < ? ORDER BY %s",
		strings.Join(quoted, ", "), schema.Quote(table), ts, ts, ts)
	return r.query(ctx, query, start, end)
}

func (r *Reader) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := r.db.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows reads every row; nothing is returned if any row fails.
func scanRows(rows *sqlx.Rows) ([]Row, error) {
	out := []Row{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, Row(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
