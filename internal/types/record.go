package types

import (
	"database/sql"
	"time"
)

// Record is one aggregated measurement event: a unix timestamp in whole
// seconds followed by one value per channel in the table's column order.
// A channel with no usable readings in its cycle is stored as NULL.
//
// Records are immutable once created.
type Record struct {
	Timestamp int64
	Values    []sql.NullFloat64
}

// NewRecord builds a record from reduced channel values. NaN and infinite
// values become NULL.
func NewRecord(ts int64, values []float64) Record {
	out := make([]sql.NullFloat64, len(values))
	for i, v := range values {
		if !IsNoValue(v) {
			out[i] = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	return Record{Timestamp: ts, Values: out}
}

// Time returns the timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Width is the number of stored columns, timestamp included.
func (r Record) Width() int {
	return len(r.Values) + 1
}

// Args returns the insert arguments: timestamp first, then channel values.
func (r Record) Args() []any {
	args := make([]any, 0, r.Width())
	args = append(args, r.Timestamp)
	for _, v := range r.Values {
		args = append(args, v)
	}
	return args
}

// Value returns channel i as a float and whether it is present.
func (r Record) Value(i int) (float64, bool) {
	if i < 0 || i >= len(r.Values) || !r.Values[i].Valid {
		return 0, false
	}
	return r.Values[i].Float64, true
}
