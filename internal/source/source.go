// Package source provides reading sources: collaborators that return one
// raw reading per call, one value per channel in table order.
//
// A source reports a channel it could not read as NaN. It may use the last
// known values handed to Read to stand in for channels prone to transient
// failure.
package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/types"
)

// Source returns raw readings of a fixed width.
type Source interface {
	// Width is the number of channels in every reading.
	Width() int

	// Read takes one reading. last holds the most recent aggregated value
	// of each fallback channel. An error marks the whole reading as failed.
	Read(ctx context.Context, last types.Fallbacks) (types.Reading, error)
}

// =============================================================================
// Func
// =============================================================================

// ReadFunc is the signature of a function-backed source.
type ReadFunc func(ctx context.Context, last types.Fallbacks) (types.Reading, error)

// Func adapts a function to a Source.
type Func struct {
	width int
	fn    ReadFunc
}

// NewFunc returns a source of the given width backed by fn.
func NewFunc(width int, fn ReadFunc) *Func {
	return &Func{width: width, fn: fn}
}

// Width implements Source.
func (f *Func) Width() int { return f.width }

// Read implements Source.
func (f *Func) Read(ctx context.Context, last types.Fallbacks) (types.Reading, error) {
	return f.fn(ctx, last)
}

// =============================================================================
// Random
// =============================================================================

// Random produces uniformly distributed integers in [0, Max). It stands in
// for real sensors when exercising a deployment.
type Random struct {
	width int
	max   int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a random source. A zero seed picks a random one.
func NewRandom(width, max int, seed uint64) *Random {
	if max <= 0 {
		max = 10
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Random{
		width: width,
		max:   max,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Width implements Source.
func (r *Random) Width() int { return r.width }

// Read implements Source.
func (r *Random) Read(ctx context.Context, _ types.Fallbacks) (types.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(types.Reading, r.width)
	for i := range out {
		out[i] = float64(r.rng.IntN(r.max))
	}
	return out, nil
}

// =============================================================================
// Static
// =============================================================================

// Static replays a fixed sequence of readings, wrapping around at the end.
// A nil entry replays as a failed read.
type Static struct {
	width    int
	readings []types.Reading

	mu   sync.Mutex
	next int
}

// NewStatic returns a source replaying readings. Every non-nil reading
// must have the same width.
func NewStatic(readings ...types.Reading) (*Static, error) {
	width := -1
	for i, r := range readings {
		if r == nil {
			continue
		}
		if width >= 0 && len(r) != width {
			return nil, fmt.Errorf("reading %d has %d values, want %d: %w", i, len(r), width, errors.ErrWidthMismatch)
		}
		width = len(r)
	}
	if width < 0 {
		return nil, fmt.Errorf("static source: %w", errors.ErrNoSource)
	}
	return &Static{width: width, readings: readings}, nil
}

// Width implements Source.
func (s *Static) Width() int { return s.width }

// Read implements Source.
func (s *Static) Read(ctx context.Context, _ types.Fallbacks) (types.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	r := s.readings[s.next]
	s.next = (s.next + 1) % len(s.readings)
	s.mu.Unlock()

	if r == nil {
		return nil, errors.New("scripted read failure")
	}
	out := make(types.Reading, len(r))
	copy(out, r)
	return out, nil
}
