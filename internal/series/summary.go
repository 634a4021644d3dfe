package series

import (
	"slices"
	"time"

	"github.com/chrissnell/remotendvi/internal/ndvi"
)

// Summary describes one context's series at a glance
type Summary struct {
	Context            Context       `json:"context"`
	TotalScenes        int           `json:"total_scenes"`
	UsedScenes         int           `json:"used_scenes"`
	AverageValidPixels *float64      `json:"average_valid_pixels"` // mean valid_fraction of used scenes
	FirstDate          string        `json:"first_date,omitempty"`
	LastDate           string        `json:"last_date,omitempty"`
	Latency            time.Duration `json:"latency_ns"`
}

// Summarize counts used scenes and averages their valid-pixel percentage.
// First and last dates come from the used scenes in id order.
func Summarize(ctx Context, samples []ndvi.Sample, latency time.Duration) Summary {
	sum := Summary{Context: ctx, TotalScenes: len(samples), Latency: latency}

	var used []ndvi.Sample
	for _, s := range samples {
		if s.Valid() {
			used = append(used, s)
		}
	}
	sum.UsedScenes = len(used)
	if len(used) == 0 {
		return sum
	}

	var total float64
	for _, s := range used {
		total += s.ValidFraction
	}
	avg := total / float64(len(used))
	sum.AverageValidPixels = &avg

	slices.SortStableFunc(used, func(a, b ndvi.Sample) int { return a.ID - b.ID })
	sum.FirstDate = used[0].Datetime
	sum.LastDate = used[len(used)-1].Datetime
	return sum
}

// MergeByDatetime collapses samples sharing a datetime into one, keeping
// the first sample's identity and averaging the non-null raw and smoothed
// statistics of the group. Groups keep first-appearance order.
func MergeByDatetime(samples []ndvi.Sample) []ndvi.Sample {
	var order []string
	groups := make(map[string][]ndvi.Sample)
	for _, s := range samples {
		if _, ok := groups[s.Datetime]; !ok {
			order = append(order, s.Datetime)
		}
		groups[s.Datetime] = append(groups[s.Datetime], s)
	}

	out := make([]ndvi.Sample, 0, len(order))
	for _, dt := range order {
		group := groups[dt]
		merged := group[0]
		merged.MeanNDVI = meanOf(group, func(s ndvi.Sample) *float64 { return s.MeanNDVI })
		merged.MedianNDVI = meanOf(group, func(s ndvi.Sample) *float64 { return s.MedianNDVI })
		merged.MeanNDVISmoothed = meanOf(group, func(s ndvi.Sample) *float64 { return s.MeanNDVISmoothed })
		merged.MedianNDVISmoothed = meanOf(group, func(s ndvi.Sample) *float64 { return s.MedianNDVISmoothed })
		out = append(out, merged)
	}
	return out
}

func meanOf(group []ndvi.Sample, field func(ndvi.Sample) *float64) *float64 {
	var sum float64
	n := 0
	for _, s := range group {
		if v := field(s); isFinite(v) {
			sum += *v
			n++
		}
	}
	return average(sum, n, nil)
}
