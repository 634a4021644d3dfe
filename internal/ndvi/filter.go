package ndvi

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// DefaultZThreshold is the z-score filter cut-off in standard deviations
const DefaultZThreshold = 2.0

// ErrUnknownFilter is returned by ParseFilterKind for unrecognized names
var ErrUnknownFilter = errors.New("unknown outlier filter")

// FilterKind selects the outlier filter applied to a scene's NDVI pixels
type FilterKind string

const (
	FilterNone   FilterKind = "none"
	FilterZScore FilterKind = "z-score"
	FilterIQR    FilterKind = "IQR"
)

// ParseFilterKind accepts none, z-score and IQR in any case. Empty means none.
func ParseFilterKind(s string) (FilterKind, error) {
	for _, k := range []FilterKind{FilterNone, FilterZScore, FilterIQR} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	if strings.TrimSpace(s) == "" {
		return FilterNone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// FilterResult holds the retained pixels and the retained percentage. The
// percentage is taken over the original buffer length, masked pixels
// included, so heavy masking lowers it too.
type FilterResult struct {
	Values   []float32
	Fraction float64 // 0-100
}

// ApplyFilter runs the filter named by kind with its default parameters
func ApplyFilter(kind FilterKind, buf []float32) FilterResult {
	switch kind {
	case FilterIQR:
		return IQRFilter(buf)
	case FilterZScore:
		return ZScoreFilter(buf, DefaultZThreshold)
	}
	return FilterResult{Values: buf, Fraction: 100}
}

// IQRFilter keeps values within 1.5 interquartile ranges of the quartiles.
// Quartiles are the sorted finite values at floor(0.25n) and floor(0.75n),
// without interpolation.
func IQRFilter(buf []float32) FilterResult {
	finite := finiteValues(buf)
	if len(finite) == 0 {
		return FilterResult{Values: []float32{}}
	}
	sort.Float64s(finite)

	q1 := finite[int(math.Floor(0.25*float64(len(finite))))]
	q3 := finite[int(math.Floor(0.75*float64(len(finite))))]
	iqr := q3 - q1
	low, high := q1-1.5*iqr, q3+1.5*iqr

	kept := make([]float32, 0, len(finite))
	for _, v := range buf {
		f := float64(v)
		if f >= low && f <= high {
			kept = append(kept, v)
		}
	}
	return FilterResult{Values: kept, Fraction: percent(len(kept), len(buf))}
}

// ZScoreFilter keeps finite values within threshold population standard
// deviations of the population mean.
func ZScoreFilter(buf []float32, threshold float64) FilterResult {
	finite := finiteValues(buf)
	if len(finite) == 0 {
		return FilterResult{Values: []float32{}}
	}
	mean, std := stat.PopMeanStdDev(finite, nil)

	kept := make([]float32, 0, len(finite))
	for _, f := range finite {
		if math.Abs(f-mean) <= threshold*std {
			kept = append(kept, float32(f))
		}
	}
	return FilterResult{Values: kept, Fraction: percent(len(kept), len(buf))}
}

func finiteValues(buf []float32) []float64 {
	out := make([]float64, 0, len(buf))
	for _, v := range buf {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			out = append(out, f)
		}
	}
	return out
}
