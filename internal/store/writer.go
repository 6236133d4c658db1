package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/types"
)

// RetryPolicy bounds how often a failed flush transaction is attempted.
type RetryPolicy struct {
	MaxAttempts uint
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: config.DefaultRetryMaxAttempts,
		MinInterval: config.DefaultRetryMinInterval,
		MaxInterval: config.DefaultRetryMaxInterval,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.MinInterval > 0 {
		b.InitialInterval = p.MinInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	Retry   RetryPolicy
	Metrics *metrics.Metrics
}

// Writer flushes buffered records into the store. It owns the write
// connection: closing the writer closes the underlying DB.
//
// Each table of a flush is committed as one transaction, so a failed table
// leaves no row of that flush behind. Its records are put back at the front
// of the buffer, which means a record is written exactly once or stays
// pending.
type Writer struct {
	db      *DB
	reg     *Registry
	retry   RetryPolicy
	metrics *metrics.Metrics
}

// NewWriter creates a writer over db using reg to resolve tables.
func NewWriter(db *DB, reg *Registry, opts WriterOptions) *Writer {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Writer{
		db:      db,
		reg:     reg,
		retry:   opts.Retry,
		metrics: opts.Metrics,
	}
}

// Registry returns the registry the writer resolves tables with.
func (w *Writer) Registry() *Registry {
	return w.reg
}

// Flush drains buf and writes the records of each table in a transaction of
// their own, retrying transient failures with exponential backoff. It
// returns the number of records committed.
//
// Records that can never be written (unknown table, wrong width, a table
// whose physical columns no longer match) are rejected, logged and reported
// in the returned error; they are not re-queued. When a table's transaction
// keeps failing, its records are re-queued and an error wrapping
// ErrWriteFailed is returned. A failing table never holds back the others.
func (w *Writer) Flush(ctx context.Context, buf *buffer.WriteBuffer) (int, error) {
	batch := buf.DrainAll()
	defer func() { w.metrics.SetBuffered(buf.Len()) }()

	if batch.Len() == 0 {
		return 0, nil
	}

	// Tables are created before any transaction begins: the handle has a
	// single connection, which the transaction would otherwise hold.
	valid, tables, pending, errs := w.prepare(ctx, batch)

	written := 0
	failed := false
	for _, name := range valid.Tables() {
		recs := valid[name]
		err := w.flushTable(ctx, tables[name], recs)
		switch {
		case err == nil:
			written += len(recs)
			w.metrics.Written(name, len(recs))
		case errors.IsRetriable(err) || errors.Is(err, errors.ErrStoreClosed):
			pending[name] = recs
			failed = true
			log.Error("flush failed, records kept for next flush",
				"table", name,
				"records", len(recs),
				"error", err)
			errs = append(errs, fmt.Errorf("%w: %w", errors.ErrWriteFailed, err))
		default:
			w.reject(name, len(recs), err)
			errs = append(errs, err)
		}
	}

	buf.Requeue(pending)
	if failed {
		w.metrics.FlushFailed()
	}
	log.Debug("flushed", "records", written, "tables", len(valid))

	return written, errors.Join(errs...)
}

// flushTable inserts recs into table in one transaction, retrying while the
// failure may be transient.
func (w *Writer) flushTable(ctx context.Context, table schema.Table, recs []types.Record) error {
	start := time.Now()
	defer func() { w.metrics.ObserveFlush(time.Since(start)) }()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := w.db.Transaction(ctx, func(tx *sql.Tx) error {
			return insertRecords(ctx, tx, table, recs)
		})
		if err != nil && !errors.IsRetriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(w.retry.backOff()),
		backoff.WithMaxTries(w.retry.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("flush failed, retrying",
				"table", table.Name,
				"attempt", attempt,
				"retry_in", next,
				"error", err)
		}),
	)
	return err
}

// prepare resolves every table of batch and splits it into records ready
// to insert, records to keep for a later flush, and rejected records.
func (w *Writer) prepare(ctx context.Context, batch buffer.Batch) (valid buffer.Batch, tables map[string]schema.Table, pending buffer.Batch, errs []error) {
	valid = make(buffer.Batch)
	pending = make(buffer.Batch)
	tables = make(map[string]schema.Table)

	for _, name := range batch.Tables() {
		recs := batch[name]

		table, err := w.reg.Ensure(ctx, name)
		if err != nil {
			if errors.IsRetriable(err) {
				pending[name] = recs
				errs = append(errs, fmt.Errorf("%w: %w", errors.ErrWriteFailed, err))
				continue
			}
			w.reject(name, len(recs), err)
			errs = append(errs, err)
			continue
		}
		tables[name] = table

		for _, rec := range recs {
			if rec.Width() != table.Width() {
				err := fmt.Errorf("table %s has %d columns, record at %d has %d: %w",
					name, table.Width(), rec.Timestamp, rec.Width(), errors.ErrWidthMismatch)
				w.reject(name, 1, err)
				errs = append(errs, err)
				continue
			}
			valid[name] = append(valid[name], rec)
		}
	}

	return valid, tables, pending, errs
}

func (w *Writer) reject(table string, n int, err error) {
	w.metrics.Rejected(n)
	log.Error("records rejected", "table", table, "records", n, "error", err)
}

func insertRecords(ctx context.Context, tx *sql.Tx, table schema.Table, recs []types.Record) error {
	stmt, err := tx.PrepareContext(ctx, table.InsertSQL())
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table.Name, classify(table.Name, err))
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.Args()...); err != nil {
			return fmt.Errorf("insert into %s at %d: %w", table.Name, rec.Timestamp, classify(table.Name, err))
		}
	}
	return nil
}

// Checkpoint copies the write-ahead log back into the main file without
// blocking readers.
func (w *Writer) Checkpoint(ctx context.Context) error {
	if err := w.db.checkOpen(); err != nil {
		return err
	}
	if _, err := w.db.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints and releases the write connection. Records still in a
// buffer are not flushed; flush before closing.
func (w *Writer) Close() error {
	if err := w.db.checkOpen(); err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Checkpoint(ctx); err != nil {
		log.Warn("checkpoint on close failed", "error", err)
	}
	return w.db.Close()
}
