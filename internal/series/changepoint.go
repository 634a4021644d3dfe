package series

import (
	"math"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"gonum.org/v1/gonum/stat"
)

// Detector defaults
const (
	DefaultDetectorWindow        = 5
	DefaultDetectorThreshold     = 2.5
	DefaultDetectorMinSeparation = 2
	ReasonZScore                 = "z-score"
)

// DetectorParams configures the trailing-window z-score detector
type DetectorParams struct {
	Window        int     `json:"window" yaml:"window"`
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	MinSeparation int     `json:"min_separation" yaml:"min_separation"`
}

// DefaultDetectorParams returns window 5, threshold 2.5, separation 2
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		Window:        DefaultDetectorWindow,
		Threshold:     DefaultDetectorThreshold,
		MinSeparation: DefaultDetectorMinSeparation,
	}
}

// Enabled reports whether detection runs at all; a window of 1 turns it off
func (p DetectorParams) Enabled() bool { return p.Window > 1 }

// ChangePoint marks the later sample of a pair whose difference broke from
// the recent trend.
type ChangePoint struct {
	ID       int     `json:"id"`
	Datetime string  `json:"datetime"`
	Delta    float64 `json:"delta"`
	ZScore   float64 `json:"z"`
	Reason   string  `json:"reason"`
}

// DetectChangePoints flags abrupt shifts in mean NDVI. The first
// differences of consecutive means are compared, one at a time, with the
// population mean and standard deviation of the window differences before
// them. Adjacency is by position in the valid sequence, not by date, so a
// run of rejected scenes between two samples is invisible here.
//
// A baseline with zero spread is skipped, which means a change following a
// perfectly flat stretch goes undetected until the baseline varies.
func DetectChangePoints(valid []ndvi.Sample, params DetectorParams) []ChangePoint {
	samples := make([]ndvi.Sample, 0, len(valid))
	for _, s := range valid {
		if s.MeanNDVI != nil {
			samples = append(samples, s)
		}
	}
	if params.Window < 1 || len(samples) < 2 {
		return nil
	}

	deltas := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		deltas[i-1] = *samples[i].MeanNDVI - *samples[i-1].MeanNDVI
	}

	var changes []ChangePoint
	last := math.MinInt / 2
	for i := params.Window; i < len(deltas); i++ {
		mean, std := stat.PopMeanStdDev(deltas[i-params.Window:i], nil)
		if std == 0 {
			continue
		}
		z := (deltas[i] - mean) / std
		if math.Abs(z) >= params.Threshold && i-last >= params.MinSeparation {
			changes = append(changes, ChangePoint{
				ID:       samples[i+1].ID,
				Datetime: samples[i+1].Datetime,
				Delta:    deltas[i],
				ZScore:   z,
				Reason:   ReasonZScore,
			})
			last = i
		}
	}
	return changes
}
