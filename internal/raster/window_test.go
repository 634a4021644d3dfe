package raster

import (
	"errors"
	"testing"

	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/paulmach/orb"
)

func TestExtractWindowGeographic(t *testing.T) {
	ref := GeoRef{OriginX: 9.0, OriginY: 46.0, ResX: 0.001, ResY: -0.001, EPSG: 4326}
	vertices := []orb.Point{
		{9.0105, 45.9905},
		{9.0205, 45.9805},
		{9.0155, 45.9855},
	}

	w, err := ExtractWindow(vertices, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Window{X0: 10, Y0: 9, X1: 20, Y1: 19}
	if w != want {
		t.Errorf("window = %+v, expected %+v", w, want)
	}
	if w.Width() != 11 || w.Height() != 11 {
		t.Errorf("inclusive size = %dx%d, expected 11x11", w.Width(), w.Height())
	}
}

func TestExtractWindowUTM(t *testing.T) {
	// 10 m grid in UTM 32N whose origin sits just north-west of (9°E, 45°N)
	ref := GeoRef{OriginX: 499980, OriginY: 4983005, ResX: 10, ResY: -10, EPSG: 32632}

	w, err := ExtractWindow([]orb.Point{{9, 45}}, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Window{X0: 2, Y0: 5, X1: 2, Y1: 5}
	if w != want {
		t.Errorf("window = %+v, expected %+v", w, want)
	}
}

func TestExtractWindowOrderInvariant(t *testing.T) {
	ref := GeoRef{OriginX: 0, OriginY: 1, ResX: 0.01, ResY: -0.01}
	a := []orb.Point{{0.105, 0.905}, {0.505, 0.505}, {0.305, 0.205}}
	b := []orb.Point{{0.305, 0.205}, {0.105, 0.905}, {0.505, 0.505}}

	wa, _ := ExtractWindow(a, ref)
	wb, _ := ExtractWindow(b, ref)
	if wa != wb {
		t.Errorf("vertex order changed the window: %+v vs %+v", wa, wb)
	}
	if wa.X0 > wa.X1 || wa.Y0 > wa.Y1 {
		t.Errorf("window invariant violated: %+v", wa)
	}
}

func TestExtractWindowErrors(t *testing.T) {
	ref := GeoRef{OriginX: 0, OriginY: 0, ResX: 10, ResY: -10, EPSG: 32632}
	if _, err := ExtractWindow(nil, ref); !errors.Is(err, region.ErrInvalidRegion) {
		t.Errorf("expected ErrInvalidRegion, got %v", err)
	}

	bad := GeoRef{OriginX: 0, OriginY: 0, ResX: 10, ResY: -10, EPSG: 27700}
	if _, err := ExtractWindow([]orb.Point{{0, 51}}, bad); err == nil {
		t.Errorf("expected an error for an unsupported CRS")
	}
}

func TestExtractWindowFromBBox(t *testing.T) {
	bbox := orb.Bound{Min: orb.Point{9, 45}, Max: orb.Point{10, 46}}
	w, err := ExtractWindowFromBBox([]orb.Point{{9.25, 45.75}, {9.5, 45.5}}, bbox, 100, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Window{X0: 25, Y0: 25, X1: 50, Y1: 50}
	if w != want {
		t.Errorf("window = %+v, expected %+v", w, want)
	}

	if _, err := ExtractWindowFromBBox(nil, bbox, 100, 100); !errors.Is(err, region.ErrInvalidRegion) {
		t.Errorf("expected ErrInvalidRegion, got %v", err)
	}
}

func TestWindowClamp(t *testing.T) {
	w := Window{X0: -3, Y0: 2, X1: 12, Y1: 4}
	c, err := w.Clamp(10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != (Window{X0: 0, Y0: 2, X1: 9, Y1: 4}) {
		t.Errorf("clamped = %+v", c)
	}

	if _, err := (Window{X0: 20, Y0: 0, X1: 25, Y1: 3}).Clamp(10, 10); !errors.Is(err, ErrWindowOutside) {
		t.Errorf("expected ErrWindowOutside, got %v", err)
	}
}

func TestWindowScale(t *testing.T) {
	w := Window{X0: 10, Y0: 4, X1: 21, Y1: 9}
	got := w.Scale(100, 100, 50, 50)
	want := Window{X0: 5, Y0: 2, X1: 10, Y1: 4}
	if got != want {
		t.Errorf("scaled = %+v, expected %+v", got, want)
	}
}
