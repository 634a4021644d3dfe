// Package raster maps regions onto scene pixel grids and reads the band
// buffers the NDVI computation runs over.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/pkg/utm"
	"github.com/paulmach/orb"
)

// ErrWindowOutside is returned when a window does not overlap the raster at all
var ErrWindowOutside = errors.New("window lies outside the raster")

// GeoRef is the geo-referencing of one raster asset: the projected
// coordinates of the top-left corner of pixel (0,0), the pixel size along
// each axis (ResY is usually negative) and the coordinate system.
type GeoRef struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	ResX    float64 `json:"res_x"`
	ResY    float64 `json:"res_y"`
	EPSG    int     `json:"epsg"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// Window is an inclusive pixel bounding box
type Window struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Width returns the number of columns covered
func (w Window) Width() int { return w.X1 - w.X0 + 1 }

// Height returns the number of rows covered
func (w Window) Height() int { return w.Y1 - w.Y0 + 1 }

// Pixels returns the number of pixels covered
func (w Window) Pixels() int { return w.Width() * w.Height() }

// Clamp clips the window to a raster of width × height pixels
func (w Window) Clamp(width, height int) (Window, error) {
	if w.X1 < 0 || w.Y1 < 0 || w.X0 >= width || w.Y0 >= height {
		return Window{}, fmt.Errorf("%w: %+v on %dx%d", ErrWindowOutside, w, width, height)
	}
	return Window{
		X0: max(w.X0, 0),
		Y0: max(w.Y0, 0),
		X1: min(w.X1, width-1),
		Y1: min(w.Y1, height-1),
	}, nil
}

// Scale maps the window onto a raster of the same footprint at a different
// resolution, e.g. from a 10 m band onto the 20 m classification band.
func (w Window) Scale(fromWidth, fromHeight, toWidth, toHeight int) Window {
	sx := float64(toWidth) / float64(fromWidth)
	sy := float64(toHeight) / float64(fromHeight)
	return Window{
		X0: int(math.Floor(float64(w.X0) * sx)),
		Y0: int(math.Floor(float64(w.Y0) * sy)),
		X1: int(math.Floor(float64(w.X1) * sx)),
		Y1: int(math.Floor(float64(w.Y1) * sy)),
	}
}

// ExtractWindow maps lon/lat vertices onto the pixel grid described by ref
// and returns the axis-aligned bounding box of the resulting pixels. The
// window is a rectangular superset of the region, not a polygon clip.
// Only an empty vertex list is rejected here; callers pass the boundary of
// a region that passed region.Validate, which enforces the polygon minimum.
func ExtractWindow(vertices []orb.Point, ref GeoRef) (Window, error) {
	if len(vertices) < 1 {
		return Window{}, fmt.Errorf("%w: no vertices to map", region.ErrInvalidRegion)
	}
	if ref.ResX == 0 || ref.ResY == 0 {
		return Window{}, fmt.Errorf("raster has zero resolution: %+v", ref)
	}

	w := Window{X0: math.MaxInt, Y0: math.MaxInt, X1: math.MinInt, Y1: math.MinInt}
	for _, v := range vertices {
		x, y, err := utm.Project(ref.EPSG, v.Lon(), v.Lat())
		if err != nil {
			return Window{}, fmt.Errorf("reprojecting vertex %v: %w", v, err)
		}
		px := int(math.Floor((x - ref.OriginX) / ref.ResX))
		py := int(math.Floor((ref.OriginY - y) / math.Abs(ref.ResY)))

		w.X0 = min(w.X0, px)
		w.X1 = max(w.X1, px)
		w.Y0 = min(w.Y0, py)
		w.Y1 = max(w.Y1, py)
	}
	return w, nil
}

// ExtractWindowFromBBox maps vertices by linear interpolation across a
// scene's geographic bounding box. It is used for assets that carry no
// geo-keys of their own.
func ExtractWindowFromBBox(vertices []orb.Point, bbox orb.Bound, width, height int) (Window, error) {
	if len(vertices) < 1 {
		return Window{}, fmt.Errorf("%w: no vertices to map", region.ErrInvalidRegion)
	}
	spanX := bbox.Max.Lon() - bbox.Min.Lon()
	spanY := bbox.Max.Lat() - bbox.Min.Lat()
	if spanX <= 0 || spanY <= 0 {
		return Window{}, fmt.Errorf("degenerate scene bbox %v", bbox)
	}

	w := Window{X0: math.MaxInt, Y0: math.MaxInt, X1: math.MinInt, Y1: math.MinInt}
	for _, v := range vertices {
		px := int(math.Floor((v.Lon() - bbox.Min.Lon()) / spanX * float64(width)))
		py := int(math.Floor((bbox.Max.Lat() - v.Lat()) / spanY * float64(height)))

		w.X0 = min(w.X0, px)
		w.X1 = max(w.X1, px)
		w.Y0 = min(w.Y0, py)
		w.Y1 = max(w.Y1, py)
	}
	return w, nil
}
