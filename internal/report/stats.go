// Package report reads aggregated history back from the store and
// summarizes it per column for periodic reports.
package report

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// ColumnStats summarizes one column over a window. NULLs are counted as
// missing and excluded from every statistic.
type ColumnStats struct {
	Column  string
	Count   int64
	Missing int64
	Min     float64
	Mean    float64
	Max     float64

	// P50 and P95 are approximate, within 1% relative accuracy.
	P50 float64
	P95 float64

	HasPercentiles bool
}

// columnAggregate keeps running statistics for one column.
type columnAggregate struct {
	column  string
	count   int64
	missing int64
	sum     float64
	min     float64
	max     float64

	// DDSketch for percentiles (nil if it could not be created)
	sketch *ddsketch.DDSketch
}

func newColumnAggregate(column string, accuracy float64) *columnAggregate {
	agg := &columnAggregate{
		column: column,
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	}

	return agg
}

// add adds a value to the aggregate.
func (a *columnAggregate) add(value float64) {
	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		// DDSketch rejects values it cannot map; the plain stats still hold.
		_ = a.sketch.Add(value)
	}
}

func (a *columnAggregate) result() ColumnStats {
	s := ColumnStats{
		Column:  a.column,
		Count:   a.count,
		Missing: a.missing,
	}
	if a.count == 0 {
		s.Min, s.Mean, s.Max = math.NaN(), math.NaN(), math.NaN()
		s.P50, s.P95 = math.NaN(), math.NaN()
		return s
	}

	s.Min = a.min
	s.Mean = a.sum / float64(a.count)
	s.Max = a.max

	if a.sketch != nil && !a.sketch.IsEmpty() {
		p50, err50 := a.sketch.GetValueAtQuantile(0.50)
		p95, err95 := a.sketch.GetValueAtQuantile(0.95)
		if err50 == nil && err95 == nil {
			s.P50, s.P95 = p50, p95
			s.HasPercentiles = true
		}
	}
	return s
}
