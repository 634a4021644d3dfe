// Package series works on assembled NDVI sample sequences: smoothing,
// change-point detection, merging the main and comparison series into
// chart points, and summary statistics. Every function here is pure and
// leaves its inputs untouched.
package series

import (
	"math"

	"github.com/chrissnell/remotendvi/internal/ndvi"
)

// Smooth returns samples whose smoothed mean and median are the average of
// the raw values in a centred window of the given size, clipped at the
// sequence ends. When a window holds no finite value for a field, that
// field falls back to the sample's own raw value. Windows below 2 return
// the input as is.
func Smooth(samples []ndvi.Sample, window int) []ndvi.Sample {
	if window < 2 {
		return samples
	}
	half := window / 2
	out := make([]ndvi.Sample, len(samples))

	for i := range samples {
		start := max(0, i-half)
		end := min(len(samples)-1, i+half)

		var meanSum, medianSum float64
		var meanN, medianN int
		for j := start; j <= end; j++ {
			if v := samples[j].MeanNDVI; isFinite(v) {
				meanSum += *v
				meanN++
			}
			if v := samples[j].MedianNDVI; isFinite(v) {
				medianSum += *v
				medianN++
			}
		}

		s := samples[i]
		s.MeanNDVISmoothed = average(meanSum, meanN, s.MeanNDVI)
		s.MedianNDVISmoothed = average(medianSum, medianN, s.MedianNDVI)
		out[i] = s
	}
	return out
}

func average(sum float64, n int, fallback *float64) *float64 {
	if n == 0 {
		if fallback == nil {
			return nil
		}
		v := *fallback
		return &v
	}
	v := sum / float64(n)
	return &v
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
