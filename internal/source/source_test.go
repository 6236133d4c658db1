package source

import (
	"context"
	"math"
	"testing"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/types"
)

func TestRandom_Range(t *testing.T) {
	src := NewRandom(6, 10, 42)
	if src.Width() != 6 {
		t.Fatalf("expected width=6, got %d", src.Width())
	}

	for i := 0; i < 100; i++ {
		r, err := src.Read(context.Background(), nil)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(r) != 6 {
			t.Fatalf("expected 6 values, got %d", len(r))
		}
		for _, v := range r {
			if v < 0 || v >= 10 || v != math.Trunc(v) {
				t.Fatalf("value %v outside integers [0,10)", v)
			}
		}
	}
}

func TestRandom_Seeded(t *testing.T) {
	a, _ := NewRandom(4, 10, 7).Read(context.Background(), nil)
	b, _ := NewRandom(4, 10, 7).Read(context.Background(), nil)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced %v and %v", a, b)
		}
	}
}

func TestRandom_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRandom(2, 10, 1).Read(ctx, nil); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestStatic_Replay(t *testing.T) {
	src, err := NewStatic(types.Reading{1, 2}, nil, types.Reading{3, 4})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	ctx := context.Background()
	r, err := src.Read(ctx, nil)
	if err != nil || r[0] != 1 {
		t.Fatalf("first read: %v %v", r, err)
	}
	if _, err := src.Read(ctx, nil); err == nil {
		t.Error("nil entry should replay as a failed read")
	}
	r, _ = src.Read(ctx, nil)
	if r[1] != 4 {
		t.Errorf("third read: %v", r)
	}
	r, _ = src.Read(ctx, nil)
	if r[0] != 1 {
		t.Errorf("expected wrap-around, got %v", r)
	}
}

func TestStatic_WidthMismatch(t *testing.T) {
	_, err := NewStatic(types.Reading{1, 2}, types.Reading{1})
	if !errors.Is(err, errors.ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
	if _, err := NewStatic(); !errors.Is(err, errors.ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestFunc(t *testing.T) {
	src := NewFunc(1, func(_ context.Context, last types.Fallbacks) (types.Reading, error) {
		v, _ := last.Get("distance")
		return types.Reading{v}, nil
	})
	r, err := src.Read(context.Background(), types.Fallbacks{"distance": 60})
	if err != nil || r[0] != 60 {
		t.Errorf("expected fallback passed through, got %v %v", r, err)
	}
}
