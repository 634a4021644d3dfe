package series

import (
	"math"
	"testing"
)

func TestDetectChangePoints(t *testing.T) {
	tests := []struct {
		name    string
		means   []float64
		params  DetectorParams
		wantIDs []int
	}{
		{
			name:    "empty",
			means:   nil,
			params:  DefaultDetectorParams(),
			wantIDs: nil,
		},
		{
			name:    "single sample",
			means:   []float64{0.3},
			params:  DefaultDetectorParams(),
			wantIDs: nil,
		},
		{
			name:    "no change exceeds threshold",
			means:   []float64{0.1, 0.12, 0.11, 0.13, 0.12, 0.11, 0.1},
			params:  DetectorParams{Window: 3, Threshold: 2.5, MinSeparation: 2},
			wantIDs: nil,
		},
		{
			name:    "single jump",
			means:   []float64{0.1, 0.11, 0.12, 0.09, 1.0, 1.51, 1.52},
			params:  DetectorParams{Window: 3, Threshold: 2.0, MinSeparation: 2},
			wantIDs: []int{5},
		},
		{
			name: "several changes",
			means: []float64{0.1, 0.12, 0.11, 0.12, 0.15, 0.14, 0.09, 0.1, 0.5, 0.52, 0.53,
				0.2, 0.22, 0.25},
			params:  DetectorParams{Window: 3, Threshold: 2.0, MinSeparation: 2},
			wantIDs: []int{7, 9, 12},
		},
		{
			name: "min separation suppresses a close second change",
			means: []float64{0.1, 0.12, 0.11, 0.12, 0.15, 0.14, 0.09, 0.1, 0.5, 0.52, 0.53,
				0.2, 0.22, 0.25},
			params:  DetectorParams{Window: 3, Threshold: 2.0, MinSeparation: 5},
			wantIDs: []int{7, 12},
		},
		{
			name:    "identical values",
			means:   []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2},
			params:  DefaultDetectorParams(),
			wantIDs: nil,
		},
		{
			name:    "window larger than the deltas",
			means:   []float64{0.1, 0.2, 0.3},
			params:  DetectorParams{Window: 10, Threshold: 2.5, MinSeparation: 2},
			wantIDs: nil,
		},
		{
			name:    "flat baseline hides the jump",
			means:   []float64{0.2, 0.2, 0.2, 0.2, 0.9},
			params:  DetectorParams{Window: 3, Threshold: 2.0, MinSeparation: 2},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectChangePoints(makeSamples(tt.means...), tt.params)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d change points %+v, expected ids %v", len(got), got, tt.wantIDs)
			}
			for i, cp := range got {
				if cp.ID != tt.wantIDs[i] {
					t.Errorf("[%d] id = %d, expected %d", i, cp.ID, tt.wantIDs[i])
				}
				if math.Abs(cp.ZScore) < tt.params.Threshold {
					t.Errorf("[%d] |z| = %.3f below threshold", i, math.Abs(cp.ZScore))
				}
				if cp.Reason != ReasonZScore {
					t.Errorf("[%d] reason = %q", i, cp.Reason)
				}
			}
		})
	}
}

func TestDetectChangePointsKeyedToLaterSample(t *testing.T) {
	got := DetectChangePoints(makeSamples(0.1, 0.11, 0.12, 0.09, 1.0, 1.51, 1.52),
		DetectorParams{Window: 3, Threshold: 2.0, MinSeparation: 2})
	if len(got) != 1 {
		t.Fatalf("expected one change point, got %d", len(got))
	}
	cp := got[0]
	if cp.Datetime != "2025-01-5T00:00:00Z" {
		t.Errorf("datetime = %q, expected the 5th sample's", cp.Datetime)
	}
	if math.Abs(cp.Delta-0.91) > 1e-9 {
		t.Errorf("delta = %.4f, expected 0.91", cp.Delta)
	}
	if cp.ZScore < 48 || cp.ZScore > 49 {
		t.Errorf("z = %.3f, expected about 48.4", cp.ZScore)
	}
}

func TestDetectChangePointsZScore(t *testing.T) {
	got := DetectChangePoints(makeSamples(0.1, 0.2, 0.3, 1.0, 0.4, 0.5, 0.6),
		DetectorParams{Window: 3, Threshold: 1.5, MinSeparation: 2})
	if len(got) == 0 {
		t.Fatalf("expected a change point")
	}
	if math.Abs(got[0].ZScore) < 3 {
		t.Errorf("|z| = %.3f, expected at least 3", math.Abs(got[0].ZScore))
	}
}

func TestDetectChangePointsConstantAnyThreshold(t *testing.T) {
	samples := makeSamples(0.45, 0.45, 0.45, 0.45, 0.45, 0.45, 0.45, 0.45)
	for _, thr := range []float64{0, 0.5, 2.5, 100} {
		if got := DetectChangePoints(samples, DetectorParams{Window: 2, Threshold: thr, MinSeparation: 1}); len(got) != 0 {
			t.Errorf("threshold %v: expected no change points, got %+v", thr, got)
		}
	}
}

func TestDetectorParamsEnabled(t *testing.T) {
	if (DetectorParams{Window: 1}).Enabled() {
		t.Errorf("window 1 should disable detection")
	}
	if !DefaultDetectorParams().Enabled() {
		t.Errorf("defaults should enable detection")
	}
}
