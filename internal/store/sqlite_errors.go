package store

import (
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"

	"github.com/xtxerr/sensorlog/internal/errors"
)

// sqliteError is the primary SQLITE_ERROR result code: a statement that
// cannot run against the current schema, such as an insert into a table
// that was dropped or has a different column count.
const sqliteError = 1

// resultCode extracts the primary SQLite result code from either driver.
func resultCode(err error) (int, bool) {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return int(mattnErr.Code), true
	}
	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code() & 0xff, true
	}
	return 0, false
}

// classify marks driver errors that repeat on every attempt as schema
// mismatches so the writer stops retrying them. Busy, locked and I/O
// failures pass through unchanged.
func classify(table string, err error) error {
	if err == nil {
		return nil
	}
	if code, ok := resultCode(err); ok && code == sqliteError {
		return fmt.Errorf("table %s no longer matches its definition: %w: %w", table, errors.ErrSchemaMismatch, err)
	}
	return err
}
