// Package ndvi turns co-registered red, near-infrared and scene
// classification buffers into a quality-masked NDVI sample.
package ndvi

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/chrissnell/remotendvi/internal/raster"
)

var (
	// ErrBandMismatch is returned when the bands of one scene do not share a grid
	ErrBandMismatch = errors.New("band dimensions do not match")
	// ErrSceneRejected marks a scene whose valid coverage is below the threshold
	ErrSceneRejected = errors.New("scene rejected")
)

// RejectionBreakdown maps each rejected classification to the percentage
// (0-100) of window pixels that carried it. Every code of the reject set in
// force has an entry, zero included.
type RejectionBreakdown map[Classification]float64

// Reason is one breakdown entry
type Reason struct {
	Code    Classification
	Percent float64
}

// Reasons returns the entries ordered by classification code
func (b RejectionBreakdown) Reasons() []Reason {
	out := make([]Reason, 0, len(b))
	for c, p := range b {
		out = append(out, Reason{Code: c, Percent: p})
	}
	slices.SortFunc(out, func(a, b Reason) int { return int(a.Code) - int(b.Code) })
	return out
}

// Total returns the summed percentage of rejected pixels
func (b RejectionBreakdown) Total() float64 {
	var sum float64
	for _, p := range b {
		sum += p
	}
	return sum
}

// Diagnostics is everything computed while masking one scene window
type Diagnostics struct {
	NDVI          []float32 // NaN at masked pixels
	Width         int
	Height        int
	ValidCount    int
	ValidFraction float64 // 0-100
	Breakdown     RejectionBreakdown
}

// Mask computes per-pixel NDVI, replacing every pixel whose classification
// is in policy with NaN. The classification buffer must already be
// resampled to the reflectance grid.
func Mask(red, nir raster.PixelBuffer, scl raster.ClassBuffer, policy RejectSet) (Diagnostics, error) {
	if red.Width != nir.Width || red.Height != nir.Height || red.Width != scl.Width || red.Height != scl.Height {
		return Diagnostics{}, fmt.Errorf("%w: red %dx%d, nir %dx%d, scl %dx%d", ErrBandMismatch,
			red.Width, red.Height, nir.Width, nir.Height, scl.Width, scl.Height)
	}
	for _, err := range []error{red.Validate(), nir.Validate(), scl.Validate()} {
		if err != nil {
			return Diagnostics{}, fmt.Errorf("%w: %w", ErrBandMismatch, err)
		}
	}

	n := red.Len()
	out := make([]float32, n)
	nan := float32(math.NaN())
	reject := policy.lookup()
	counts := make(map[Classification]int, len(policy))
	for _, c := range policy {
		counts[c] = 0
	}

	valid := 0
	for i := 0; i < n; i++ {
		c := Classification(scl.Data[i])
		if reject[c] {
			counts[c]++
			out[i] = nan
			continue
		}
		valid++
		out[i] = (nir.Data[i] - red.Data[i]) / (nir.Data[i] + red.Data[i])
	}

	diag := Diagnostics{
		NDVI:       out,
		Width:      red.Width,
		Height:     red.Height,
		ValidCount: valid,
		Breakdown:  make(RejectionBreakdown, len(counts)),
	}
	for c, k := range counts {
		diag.Breakdown[c] = percent(k, n)
	}
	diag.ValidFraction = percent(valid, n)
	return diag, nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Outcome is the result of checking a masked scene against the coverage
// threshold: either Accepted or Rejected.
type Outcome interface {
	Diagnostics() Diagnostics
	outcome()
}

// Accepted carries the diagnostics of a scene that met the threshold
type Accepted struct {
	Diag Diagnostics
}

// Rejected carries the full diagnostics of a scene below the threshold, so
// it can be filed as "not valid" instead of being dropped. Empty marks a
// scene that met the threshold but kept no finite NDVI value.
type Rejected struct {
	Diag      Diagnostics
	Threshold float64
	Empty     bool
}

func (a Accepted) Diagnostics() Diagnostics { return a.Diag }
func (Accepted) outcome() {}

func (r Rejected) Diagnostics() Diagnostics { return r.Diag }
func (Rejected) outcome() {}

// Err describes the rejection as an error wrapping ErrSceneRejected
func (r Rejected) Err() error {
	if r.Empty {
		return fmt.Errorf("%w: no finite NDVI value in %.2f%% valid pixels", ErrSceneRejected, r.Diag.ValidFraction)
	}
	return fmt.Errorf("%w: %.2f%% valid pixels (required ≥ %g%%)", ErrSceneRejected, r.Diag.ValidFraction, r.Threshold)
}

// Evaluate checks the valid fraction against a coverage threshold (0-100)
func Evaluate(diag Diagnostics, threshold float64) Outcome {
	if diag.ValidFraction < threshold {
		return Rejected{Diag: diag, Threshold: threshold}
	}
	return Accepted{Diag: diag}
}
