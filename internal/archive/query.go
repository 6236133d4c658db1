package archive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/store"
)

// Query answers queries over exported Parquet files using an in-memory
// DuckDB database.
type Query struct {
	db *sqlx.DB
}

// OpenQuery opens the query engine.
func OpenQuery() (*Query, error) {
	// Open in-memory DuckDB database
	db, err := sqlx.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Query{db: db}, nil
}

// Close closes the query engine.
func (q *Query) Close() error {
	if q.db != nil {
		return q.db.Close()
	}
	return nil
}

// Columns returns the column names of an exported file, sorted by name.
func Columns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewTableNotFound(path)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	var names []string
	for _, field := range pf.Schema().Fields() {
		names = append(names, field.Name())
	}
	return names, nil
}

// Count returns the number of rows in an exported file.
func (q *Query) Count(ctx context.Context, path string) (int64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, errors.NewTableNotFound(path)
	}

	var n int64
	if err := q.db.GetContext(ctx, &n, `SELECT count(*) FROM read_parquet($1)`, path); err != nil {
		return 0, fmt.Errorf("count %s: %w", path, err)
	}
	return n, nil
}

// Range returns the given columns of every archived row whose timestamp
// lies strictly between start and end, ascending. timestampColumn names
// the file's timestamp column.
func (q *Query) Range(ctx context.Context, path, timestampColumn string, start, end int64, columns []string) ([]store.Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("range of %s: %w", path, errors.ErrEmptyColumns)
	}

	known, err := Columns(path)
	if err != nil {
		return nil, err
	}
	if !contains(known, timestampColumn) {
		return nil, errors.NewColumnNotFound(path, timestampColumn)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		if !contains(known, c) {
			return nil, errors.NewColumnNotFound(path, c)
		}
		quoted[i] = schema.Quote(c)
	}

	ts := schema.Quote(timestampColumn)
	query := fmt.Sprintf(`SELECT %s FROM read_parquet($1) WHERE %s > $2 AND %s < $3 ORDER BY %s`,
		strings.Join(quoted, ", "), ts, ts, ts)

	rows, err := q.db.QueryxContext(ctx, query, path, start, end)
	if err != nil {
		return nil, fmt.Errorf("query parquet: %w", err)
	}
	defer rows.Close()

	out := []store.Row{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, store.Row(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
