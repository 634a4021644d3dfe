package ndvi

import (
	"errors"
	"math"
	"testing"
)

func TestMeanNDVI(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		want  *float64
	}{
		{"empty", []float32{}, nil},
		{"all NaN", []float32{nan32, nan32}, nil},
		{"ignores NaN", []float32{0.2, nan32, 0.4}, Float(0.3)},
		{"ignores Inf", []float32{0.5, float32(math.Inf(-1))}, Float(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanNDVI(tt.input)
			assertFloatPtr(t, got, tt.want, 1e-6)
		})
	}
}

func TestMedianNDVI(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		want  *float64
	}{
		{"empty", []float32{}, nil},
		{"single", []float32{0.42}, Float(float64(float32(0.42)))},
		{"odd count takes the middle", []float32{0.9, 0.1, 0.5}, Float(0.5)},
		{"even count averages the middle two", []float32{0.4, 0.1, 0.3, 0.2}, Float(0.25)},
		{"NaN excluded", []float32{nan32, 0.1, nan32, 0.3}, Float(0.2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MedianNDVI(tt.input)
			assertFloatPtr(t, got, tt.want, 1e-6)
		})
	}
}

func assertFloatPtr(t *testing.T, got, want *float64, epsilon float64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("got %v, expected %v", got, want)
	case math.Abs(*got-*want) > epsilon:
		t.Errorf("got %v, expected %v", *got, *want)
	}
}

func TestAggregate(t *testing.T) {
	diag := Diagnostics{
		NDVI:          []float32{0.2, nan32, 0.4, 0.9},
		Width:         2,
		Height:        2,
		ValidCount:    3,
		ValidFraction: 75,
		Breakdown:     RejectionBreakdown{NoData: 25},
	}
	meta := SceneMeta{FeatureID: "S2A_1", ID: 3, Datetime: "2025-05-01T10:00:00Z", Preview: "p.png"}

	s := Aggregate(meta, diag, FilterIQR, FilterResult{Fraction: 75})

	if s.FeatureID != "S2A_1" || s.ID != 3 || s.Datetime != meta.Datetime || s.Preview != "p.png" {
		t.Errorf("metadata not copied: %+v", s)
	}
	// statistics come from the unfiltered masked array
	assertFloatPtr(t, s.MeanNDVI, Float(0.5), 1e-6)
	assertFloatPtr(t, s.MedianNDVI, Float(0.4), 1e-6)
	assertFloatPtr(t, s.MeanNDVISmoothed, s.MeanNDVI, 0)
	assertFloatPtr(t, s.MedianNDVISmoothed, s.MedianNDVI, 0)
	if s.MeanNDVISmoothed == s.MeanNDVI {
		t.Errorf("smoothed field should not alias the raw field")
	}
	if s.FilterFraction != 75 || s.Filter != FilterIQR {
		t.Errorf("filter fields = %v, %v", s.Filter, s.FilterFraction)
	}
	if s.Status() != StatusIncluded || !s.Valid() {
		t.Errorf("status = %s", s.Status())
	}
}

func TestProcess(t *testing.T) {
	diag := Diagnostics{
		NDVI:          []float32{nan32, nan32, 0.5, 0.5},
		ValidCount:    2,
		ValidFraction: 50,
		Breakdown:     RejectionBreakdown{NoData: 25, CloudHighProbability: 25},
	}
	meta := SceneMeta{FeatureID: "f", ID: 1, Datetime: "2024-01-01T00:00:00Z"}

	s, outcome := Process(meta, diag, 80, FilterZScore)
	if _, ok := outcome.(Rejected); !ok {
		t.Fatalf("expected Rejected, got %T", outcome)
	}
	if s.MeanNDVI != nil || s.MedianNDVI != nil {
		t.Errorf("rejected sample should have no statistics")
	}
	if s.Status() != StatusExcluded {
		t.Errorf("status = %s, expected Excluded", s.Status())
	}
	if s.ValidFraction != 50 || len(s.NDVI) != 4 || s.Filter != FilterZScore || s.FilterFraction != 0 {
		t.Errorf("rejected sample lost diagnostics: %+v", s)
	}

	s, outcome = Process(meta, diag, 40, FilterNone)
	if _, ok := outcome.(Accepted); !ok {
		t.Fatalf("expected Accepted, got %T", outcome)
	}
	assertFloatPtr(t, s.MeanNDVI, Float(0.5), 1e-6)
	if s.FilterFraction != 100 {
		t.Errorf("filter fraction = %v, expected 100", s.FilterFraction)
	}
}

func TestProcessWithoutFiniteValuesIsRejected(t *testing.T) {
	diag := Diagnostics{
		NDVI:      []float32{nan32, nan32},
		Breakdown: RejectionBreakdown{CloudHighProbability: 50, Water: 50},
	}
	meta := SceneMeta{FeatureID: "f", ID: 1, Datetime: "2024-01-01T00:00:00Z"}

	s, outcome := Process(meta, diag, 0, FilterIQR)
	r, ok := outcome.(Rejected)
	if !ok {
		t.Fatalf("expected Rejected, got %T", outcome)
	}
	if !r.Empty || !errors.Is(r.Err(), ErrSceneRejected) {
		t.Errorf("rejection = %+v, err %v", r, r.Err())
	}
	if s.MeanNDVI != nil || s.Status() != StatusExcluded || len(s.NDVI) != 2 {
		t.Errorf("sample = %+v, expected an excluded sample with its pixels", s)
	}
}

