// Package buffer holds aggregated records between flush cycles.
package buffer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/sensorlog/internal/types"
)

// Batch maps a physical table name to its pending records in insertion order.
type Batch map[string][]types.Record

// Len returns the total number of records in the batch.
func (b Batch) Len() int {
	n := 0
	for _, recs := range b {
		n += len(recs)
	}
	return n
}

// Tables returns the table names in the batch, sorted.
func (b Batch) Tables() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteBuffer accumulates records per table until they are drained by a
// flush. It owns pending records exclusively; once drained, the caller owns
// them. No size bound is enforced: flush cadence is the caller's concern.
//
// WriteBuffer is safe for concurrent use.
type WriteBuffer struct {
	mu     sync.Mutex
	tables Batch
	count  int

	// Statistics
	appendCount  atomic.Int64
	drainCount   atomic.Int64
	requeueCount atomic.Int64
}

// New creates an empty WriteBuffer.
func New() *WriteBuffer {
	return &WriteBuffer{tables: make(Batch)}
}

// Append adds a record to the pending list for table.
func (b *WriteBuffer) Append(table string, rec types.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tables[table] = append(b.tables[table], rec)
	b.count++
	b.appendCount.Add(1)
}

// DrainAll returns every pending record and empties the buffer in the same
// critical section, so no record can be both returned and retained.
func (b *WriteBuffer) DrainAll() Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.tables
	b.drainCount.Add(int64(b.count))
	b.tables = make(Batch)
	b.count = 0
	return out
}

// Requeue puts records from a failed flush back in front of anything
// appended since, preserving per-table order.
func (b *WriteBuffer) Requeue(batch Batch) {
	if batch.Len() == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for table, recs := range batch {
		if len(recs) == 0 {
			continue
		}
		merged := make([]types.Record, 0, len(recs)+len(b.tables[table]))
		merged = append(merged, recs...)
		merged = append(merged, b.tables[table]...)
		b.tables[table] = merged
		b.count += len(recs)
		b.requeueCount.Add(int64(len(recs)))
	}
}

// Len returns the number of pending records across all tables.
func (b *WriteBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// IsEmpty returns true if nothing is pending.
func (b *WriteBuffer) IsEmpty() bool {
	return b.Len() == 0
}

// Stats returns buffer statistics.
func (b *WriteBuffer) Stats() Stats {
	return Stats{
		Pending:  b.Len(),
		Appended: b.appendCount.Load(),
		Drained:  b.drainCount.Load(),
		Requeued: b.requeueCount.Load(),
	}
}

// Stats holds buffer statistics.
type Stats struct {
	Pending  int
	Appended int64
	Drained  int64
	Requeued int64
}
