package sampler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xtxerr/sensorlog/internal/constants"
	"github.com/xtxerr/sensorlog/internal/errors"
)

// Reducer collapses the present values of one channel into one value. It
// is never called with an empty slice.
type Reducer func(values []float64) float64

// Mean returns the arithmetic mean.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value, or the mean of the two middle values.
func Median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ParseReducer returns the reducer called name ("mean" or "median").
func ParseReducer(name string) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", constants.ReducerMean, "avg", "average":
		return Mean, nil
	case constants.ReducerMedian:
		return Median, nil
	default:
		return nil, fmt.Errorf("reducer %q: %w", name, errors.ErrUnsupportedType)
	}
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
