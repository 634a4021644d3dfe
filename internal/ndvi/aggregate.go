package ndvi

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// MeanNDVI returns the arithmetic mean of the finite values, or nil when
// there are none.
func MeanNDVI(values []float32) *float64 {
	finite := finiteValues(values)
	if len(finite) == 0 {
		return nil
	}
	mean := floats.Sum(finite) / float64(len(finite))
	return &mean
}

// MedianNDVI returns the median of the finite values: the middle value for
// odd counts, the mean of the two central values for even counts. nil when
// there are no finite values.
func MedianNDVI(values []float32) *float64 {
	finite := finiteValues(values)
	n := len(finite)
	if n == 0 {
		return nil
	}
	sort.Float64s(finite)

	mid := n / 2
	median := finite[mid]
	if n%2 == 0 {
		median = (finite[mid-1] + finite[mid]) / 2
	}
	return &median
}
