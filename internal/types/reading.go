package types

import "math"

// Reading is one raw sample from a reading source: one value per channel,
// in the table's channel order. NaN marks a channel the source could not read.
type Reading []float64

// NoValue returns the "no value" marker.
func NoValue() float64 {
	return math.NaN()
}

// IsNoValue reports whether v is missing or unusable.
func IsNoValue(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// EmptyReading returns a reading of the given width with every channel missing.
func EmptyReading(width int) Reading {
	r := make(Reading, width)
	for i := range r {
		r[i] = math.NaN()
	}
	return r
}

// Present returns the number of channels that hold a value.
func (r Reading) Present() int {
	n := 0
	for _, v := range r {
		if !IsNoValue(v) {
			n++
		}
	}
	return n
}

// Fallbacks holds the last known value of channels prone to transient
// failure, keyed by channel name. The aggregator returns an updated copy
// after every cycle and the source may substitute these values when a
// channel fails to read.
type Fallbacks map[string]float64

// Clone returns an independent copy.
func (f Fallbacks) Clone() Fallbacks {
	out := make(Fallbacks, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the fallback for a channel, if one is known.
func (f Fallbacks) Get(channel string) (float64, bool) {
	v, ok := f[channel]
	if !ok || IsNoValue(v) {
		return 0, false
	}
	return v, true
}
