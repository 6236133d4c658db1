// Package store persists aggregated records in an embedded SQLite file and
// answers queries against it.
//
// One physical table backs each logical table. The writer path (Registry +
// Writer) owns the single write connection of the process; readers open
// their own connection to the same file. Every connection runs in WAL mode
// so one writer and any number of readers can work concurrently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Options holds store configuration options.
type Options struct {
	// Driver is the database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string

	// BusyTimeoutMs is how long to wait on a locked database.
	BusyTimeoutMs int

	// ReadOnly rejects writes on this connection.
	ReadOnly bool
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Driver:        config.DefaultDriver,
		BusyTimeoutMs: config.DefaultBusyTimeoutMs,
	}
}

// SupportedDrivers lists the drivers the store registers.
var SupportedDrivers = []string{"sqlite3", "sqlite"}

// =============================================================================
// DB
// =============================================================================

// DB is one connection to a store file.
//
// DB is safe for concurrent use; statements are serialized on a single
// underlying connection.
type DB struct {
	db     *sqlx.DB
	path   string
	driver string

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the store file at path.
//
// If no file existed before, an advisory notice is logged; this never
// blocks operation.
func Open(path string, opts Options) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = config.DefaultDriver
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = config.DefaultBusyTimeoutMs
	}
	if !supported(opts.Driver) {
		return nil, fmt.Errorf("driver %q: %w", opts.Driver, errors.ErrUnsupportedType)
	}

	fresh := isNewFile(path)

	db, err := sqlx.Open(opts.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer at a time; one connection per handle also
	// keeps per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if fresh {
		log.Info("no prior database, created a new one", "path", path)
	}

	return &DB{
		db:     db,
		path:   path,
		driver: opts.Driver,
	}, nil
}

func supported(driver string) bool {
	for _, d := range SupportedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}

// isNewFile reports whether opening path will create the database.
func isNewFile(path string) bool {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return false
	}
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sqlx.DB, opts Options) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMs),
	}
	if opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the connection. Closing twice is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return d.db.Close()
}

// Path returns the store file path.
func (d *DB) Path() string {
	return d.path
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

// X returns the underlying sqlx handle.
// Use with caution - prefer using the Registry, Writer and Reader.
func (d *DB) X() *sqlx.DB {
	return d.db
}

func (d *DB) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// =============================================================================
// Transaction Support
// =============================================================================

// Transaction executes fn within a database transaction.
//
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
func (d *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := d.checkOpen(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// =============================================================================
// Introspection
// =============================================================================

// Column is a physical column as reported by the store.
type Column struct {
	Name string
	Type string
}

// tableNames lists user tables in name order.
func (d *DB) tableNames(ctx context.Context) ([]string, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	var names []string
	err := d.db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// tableColumns returns the physical columns of table in declared order.
// A table that does not exist yields ErrTableNotFound.
func (d *DB) tableColumns(ctx context.Context, table string) ([]Column, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}

	if len(cols) == 0 {
		return nil, errors.NewTableNotFound(table)
	}
	return cols, nil
}
