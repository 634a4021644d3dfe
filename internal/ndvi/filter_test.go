package ndvi

import (
	"errors"
	"math"
	"testing"
)

var nan32 = float32(math.NaN())

func equalValues(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIQRFilter(t *testing.T) {
	tests := []struct {
		name         string
		input        []float32
		wantValues   []float32
		wantFraction float64
	}{
		{
			name:         "drops high outlier",
			input:        []float32{1, 2, 2, 2, 3, 100},
			wantValues:   []float32{1, 2, 2, 2, 3},
			wantFraction: 500.0 / 6.0,
		},
		{
			name:         "NaN counts against the fraction",
			input:        []float32{1, 2, nan32, 2, 3, nan32, 100, 5},
			wantValues:   []float32{1, 2, 2, 3, 5},
			wantFraction: 62.5,
		},
		{
			name:         "all NaN",
			input:        []float32{nan32, nan32},
			wantValues:   []float32{},
			wantFraction: 0,
		},
		{
			name:         "empty",
			input:        []float32{},
			wantValues:   []float32{},
			wantFraction: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IQRFilter(tt.input)
			if !equalValues(got.Values, tt.wantValues) {
				t.Errorf("values = %v, expected %v", got.Values, tt.wantValues)
			}
			if math.Abs(got.Fraction-tt.wantFraction) > 0.01 {
				t.Errorf("fraction = %.4f, expected %.4f", got.Fraction, tt.wantFraction)
			}
		})
	}
}

func TestZScoreFilter(t *testing.T) {
	tests := []struct {
		name         string
		input        []float32
		threshold    float64
		wantValues   []float32
		wantFraction float64
	}{
		{
			name:         "identical values are all kept",
			input:        []float32{0.4, 0.4, 0.4},
			threshold:    2,
			wantValues:   []float32{0.4, 0.4, 0.4},
			wantFraction: 100,
		},
		{
			// mean 12, population std ~32.7, 110 sits 3 std away
			name:         "drops far value",
			input:        []float32{1, 1, 1, 1, 1, 1, 1, 1, 2, 110},
			threshold:    2,
			wantValues:   []float32{1, 1, 1, 1, 1, 1, 1, 1, 2},
			wantFraction: 90,
		},
		{
			name:         "NaN dropped and counted",
			input:        []float32{0.5, nan32, 0.5, nan32},
			threshold:    2,
			wantValues:   []float32{0.5, 0.5},
			wantFraction: 50,
		},
		{
			name:         "all NaN",
			input:        []float32{nan32},
			threshold:    2,
			wantValues:   []float32{},
			wantFraction: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZScoreFilter(tt.input, tt.threshold)
			if !equalValues(got.Values, tt.wantValues) {
				t.Errorf("values = %v, expected %v", got.Values, tt.wantValues)
			}
			if math.Abs(got.Fraction-tt.wantFraction) > 0.01 {
				t.Errorf("fraction = %.4f, expected %.4f", got.Fraction, tt.wantFraction)
			}
		})
	}
}

func TestFiltersNeverExceedFullOrKeepNaN(t *testing.T) {
	inputs := [][]float32{
		{0.1, 0.2, nan32, 0.3, 0.9, -0.4},
		{nan32, 0.7},
		{0.33},
		{float32(math.Inf(1)), 0.2, 0.21, 0.22},
	}
	for _, in := range inputs {
		for _, res := range []FilterResult{IQRFilter(in), ZScoreFilter(in, DefaultZThreshold)} {
			if res.Fraction > 100 || res.Fraction < 0 {
				t.Errorf("fraction %v out of range for %v", res.Fraction, in)
			}
			for _, v := range res.Values {
				if math.IsNaN(float64(v)) {
					t.Errorf("NaN retained from %v", in)
				}
			}
		}
	}
}

func TestApplyFilter(t *testing.T) {
	in := []float32{1, 2, 2, 2, 3, 100}
	if got := ApplyFilter(FilterNone, in); got.Fraction != 100 || len(got.Values) != 6 {
		t.Errorf("none = %+v", got)
	}
	if got := ApplyFilter(FilterIQR, in); len(got.Values) != 5 {
		t.Errorf("IQR kept %d values", len(got.Values))
	}
	if got := ApplyFilter(FilterZScore, in); len(got.Values) != 5 {
		t.Errorf("z-score kept %d values", len(got.Values))
	}
}

func TestParseFilterKind(t *testing.T) {
	tests := map[string]FilterKind{
		"none":    FilterNone,
		"NONE":    FilterNone,
		"iqr":     FilterIQR,
		"IQR":     FilterIQR,
		"Z-Score": FilterZScore,
		"":        FilterNone,
	}
	for in, want := range tests {
		got, err := ParseFilterKind(in)
		if err != nil || got != want {
			t.Errorf("ParseFilterKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilterKind("median"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("expected ErrUnknownFilter, got %v", err)
	}
}
