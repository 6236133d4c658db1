package report

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/store"
)

// sketchAccuracy is the relative accuracy of reported percentiles.
const sketchAccuracy = 0.01

// Querier is the part of store.Reader a report reads from.
type Querier interface {
	RangeByTime(ctx context.Context, table string, start, end int64, columns []string) ([]store.Row, error)
}

// Report is a summary of one table over a window.
type Report struct {
	Table   string
	Start   time.Time
	End     time.Time
	Rows    int
	FirstTs int64
	LastTs  int64
	Columns []ColumnStats
}

// RecordsPerWindow returns how many records a logger sampling count times
// every interval produces in window: the row budget of a report.
func RecordsPerWindow(window, interval time.Duration, count int) int {
	cycle := interval * time.Duration(count)
	if window <= 0 || cycle <= 0 {
		return 0
	}
	return int(window / cycle)
}

// Summarize computes statistics for every column but the first, which
// must be the timestamp. rows are positionally aligned to columns.
func Summarize(columns []string, rows []store.Row) ([]ColumnStats, error) {
	if len(columns) < 2 {
		return nil, fmt.Errorf("summary needs the timestamp and at least one column: %w", errors.ErrEmptyColumns)
	}

	aggs := make([]*columnAggregate, len(columns)-1)
	for i, name := range columns[1:] {
		aggs[i] = newColumnAggregate(name, sketchAccuracy)
	}

	for _, row := range rows {
		for i, agg := range aggs {
			v, ok := row.Float(i + 1)
			if !ok {
				agg.missing++
				continue
			}
			agg.add(v)
		}
	}

	out := make([]ColumnStats, len(aggs))
	for i, agg := range aggs {
		out[i] = agg.result()
	}
	return out, nil
}

// Build summarizes the columns of table over the window ending at now.
// The timestamp column is selected automatically.
func Build(ctx context.Context, q Querier, table, timestampColumn string, columns []string, window time.Duration, now time.Time) (*Report, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("report on %s: %w", table, errors.ErrEmptyColumns)
	}

	// Records carry timestamps rounded to the second.
	now = now.Round(time.Second)
	start := now.Add(-window)
	selected := append([]string{timestampColumn}, columns...)

	// Bounds are exclusive; widen by one second to include both edges.
	rows, err := q.RangeByTime(ctx, table, start.Unix()-1, now.Unix()+1, selected)
	if err != nil {
		return nil, err
	}

	stats, err := Summarize(selected, rows)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Table:   table,
		Start:   start,
		End:     now,
		Rows:    len(rows),
		Columns: stats,
	}
	if len(rows) > 0 {
		rep.FirstTs, _ = rows[0].Timestamp()
		rep.LastTs, _ = rows[len(rows)-1].Timestamp()
	}
	return rep, nil
}
