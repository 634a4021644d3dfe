package ndvi

import (
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/remotendvi/internal/raster"
)

func bands(red, nir []float32, scl []uint8, w, h int) (raster.PixelBuffer, raster.PixelBuffer, raster.ClassBuffer) {
	return raster.PixelBuffer{Width: w, Height: h, Data: red},
		raster.PixelBuffer{Width: w, Height: h, Data: nir},
		raster.ClassBuffer{Width: w, Height: h, Data: scl}
}

func TestMask(t *testing.T) {
	red, nir, scl := bands(
		[]float32{0.2, 0.2, 0.2, 0.2},
		[]float32{0.6, 0.6, 0.6, 0.6},
		[]uint8{uint8(NoData), uint8(CloudHighProbability), uint8(Vegetation), uint8(Vegetation)},
		2, 2,
	)

	diag, err := Mask(red, nir, scl, StrictRejectSet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(diag.NDVI) != 4 {
		t.Fatalf("NDVI length = %d, expected 4", len(diag.NDVI))
	}
	if !math.IsNaN(float64(diag.NDVI[0])) || !math.IsNaN(float64(diag.NDVI[1])) {
		t.Errorf("masked pixels should be NaN, got %v", diag.NDVI[:2])
	}
	for _, v := range diag.NDVI[2:] {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Errorf("NDVI = %v, expected 0.5", v)
		}
	}
	if diag.ValidCount != 2 {
		t.Errorf("valid count = %d, expected 2", diag.ValidCount)
	}
	if math.Abs(diag.ValidFraction-50) > 1e-9 {
		t.Errorf("valid fraction = %v, expected 50", diag.ValidFraction)
	}

	if len(diag.Breakdown) != len(StrictRejectSet) {
		t.Errorf("breakdown has %d entries, expected one per rejected code (%d)", len(diag.Breakdown), len(StrictRejectSet))
	}
	if diag.Breakdown[NoData] != 25 || diag.Breakdown[CloudHighProbability] != 25 || diag.Breakdown[Water] != 0 {
		t.Errorf("breakdown = %v", diag.Breakdown)
	}
	if math.Abs(diag.ValidFraction+diag.Breakdown.Total()-100) > 1e-9 {
		t.Errorf("valid + rejected = %v, expected 100", diag.ValidFraction+diag.Breakdown.Total())
	}
}

func TestMaskPolicies(t *testing.T) {
	codes := []uint8{uint8(NoData), uint8(SaturatedOrDefective), uint8(CloudShadows), uint8(Water),
		uint8(CloudMediumProbability), uint8(CloudHighProbability), uint8(ThinCirrus), uint8(Vegetation),
		uint8(SnowIce), uint8(Unclassified)}
	n := len(codes)
	red := make([]float32, n)
	nir := make([]float32, n)
	for i := range red {
		red[i], nir[i] = 0.1, 0.3
	}
	r, ni, scl := bands(red, nir, codes, n, 1)

	tests := []struct {
		name      string
		policy    RejectSet
		wantValid int
		wantKeys  int
	}{
		{"strict", StrictRejectSet, 3, 7},
		{"narrow", NarrowRejectSet, 7, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag, err := Mask(r, ni, scl, tt.policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diag.ValidCount != tt.wantValid {
				t.Errorf("valid = %d, expected %d", diag.ValidCount, tt.wantValid)
			}
			if len(diag.Breakdown) != tt.wantKeys {
				t.Errorf("breakdown keys = %d, expected %d", len(diag.Breakdown), tt.wantKeys)
			}
			for c := range diag.Breakdown {
				if !tt.policy.Contains(c) {
					t.Errorf("breakdown has %s, which the policy does not reject", c)
				}
			}
		})
	}
}

func TestMaskBandMismatch(t *testing.T) {
	red := raster.PixelBuffer{Width: 2, Height: 1, Data: []float32{1, 2}}
	nir := raster.PixelBuffer{Width: 1, Height: 2, Data: []float32{1, 2}}
	scl := raster.ClassBuffer{Width: 2, Height: 1, Data: []uint8{4, 4}}
	if _, err := Mask(red, nir, scl, StrictRejectSet); !errors.Is(err, ErrBandMismatch) {
		t.Errorf("expected ErrBandMismatch, got %v", err)
	}

	short := raster.PixelBuffer{Width: 2, Height: 1, Data: []float32{1}}
	if _, err := Mask(short, short, scl, StrictRejectSet); !errors.Is(err, ErrBandMismatch) {
		t.Errorf("expected ErrBandMismatch for short data, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	red, nir, scl := bands(
		[]float32{0.2, 0.2, 0.2, 0.2},
		[]float32{0.6, 0.6, 0.6, 0.6},
		[]uint8{0, 9, 4, 4},
		2, 2,
	)
	diag, err := Mask(red, nir, scl, StrictRejectSet)
	if err != nil {
		t.Fatal(err)
	}

	switch o := Evaluate(diag, 80).(type) {
	case Rejected:
		if o.Diag.ValidFraction != 50 {
			t.Errorf("rejected valid fraction = %v, expected 50", o.Diag.ValidFraction)
		}
		if len(o.Diag.NDVI) == 0 {
			t.Errorf("rejected outcome should carry the NDVI array")
		}
		if !errors.Is(o.Err(), ErrSceneRejected) {
			t.Errorf("Err() should wrap ErrSceneRejected, got %v", o.Err())
		}
	default:
		t.Fatalf("expected Rejected at threshold 80, got %T", o)
	}

	if _, ok := Evaluate(diag, 40).(Accepted); !ok {
		t.Errorf("expected Accepted at threshold 40")
	}
	if _, ok := Evaluate(diag, 50).(Accepted); !ok {
		t.Errorf("threshold equal to the valid fraction should accept")
	}
}

func TestClassificationText(t *testing.T) {
	for c := NoData; c <= SnowIce; c++ {
		b, err := c.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Classification
		if err := back.UnmarshalText(b); err != nil || back != c {
			t.Errorf("%s round trip = %v, %v", c, back, err)
		}
	}
	if got := Classification(42).String(); got != "SCL_42" {
		t.Errorf("unknown code string = %q", got)
	}
	var c Classification
	if err := c.UnmarshalText([]byte("FOG")); err == nil {
		t.Errorf("expected error for unknown name")
	}
}

func TestParseRejectPolicy(t *testing.T) {
	for in, want := range map[string]RejectPolicy{"": PolicyStrict, "Strict": PolicyStrict, "NARROW": PolicyNarrow} {
		got, err := ParseRejectPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseRejectPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRejectPolicy("both"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
	if len(PolicyNarrow.Set()) != 3 || len(PolicyStrict.Set()) != 7 {
		t.Errorf("unexpected policy sets")
	}
}
