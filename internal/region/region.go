// Package region models the areas of interest NDVI samples are taken over.
// A region is a drawn polygon, a point marker, or a point with a radius.
// Every kind materializes to a boundary ring of lon/lat vertices, which is
// what the raster window extractor consumes.
package region

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean radius used for circle and area math
const EarthRadiusMeters = 6371008.8

// Boundary defaults
const (
	DefaultCircleSteps  = 64
	DefaultMarkerMeters = 5.0
	metersPerDegreeLat  = 111320.0
)

// ErrInvalidRegion is returned for regions with missing or malformed vertices
var ErrInvalidRegion = errors.New("invalid region")

// Kind names the shape a region was drawn as
type Kind string

const (
	KindPoint   Kind = "point"
	KindCircle  Kind = "circle"
	KindPolygon Kind = "zonal"
)

// Region is one area of interest in geographic coordinates
type Region struct {
	ID           string    `json:"id" yaml:"id"`
	Kind         Kind      `json:"kind" yaml:"kind"`
	Center       orb.Point `json:"center,omitempty" yaml:"center,omitempty"`
	RadiusMeters float64   `json:"radius_meters,omitempty" yaml:"radius_meters,omitempty"`
	Vertices     orb.Ring  `json:"vertices,omitempty" yaml:"vertices,omitempty"`
}

// MinVertices returns how many vertices a kind needs before it can be sampled
func (k Kind) MinVertices() int {
	if k == KindPolygon {
		return 3
	}
	return 1
}

// Validate checks the region carries enough well-formed coordinates
func (r Region) Validate() error {
	switch r.Kind {
	case KindPoint, KindCircle:
		if !validLonLat(r.Center) {
			return fmt.Errorf("%w: center %v out of range", ErrInvalidRegion, r.Center)
		}
		if r.Kind == KindCircle && r.RadiusMeters <= 0 {
			return fmt.Errorf("%w: circle radius must be positive", ErrInvalidRegion)
		}
	case KindPolygon:
		distinct := Open(r.Vertices)
		if len(distinct) < KindPolygon.MinVertices() {
			return fmt.Errorf("%w: polygon needs at least %d vertices, got %d",
				ErrInvalidRegion, KindPolygon.MinVertices(), len(distinct))
		}
		for i, p := range distinct {
			if !validLonLat(p) {
				return fmt.Errorf("%w: vertex %d %v out of range", ErrInvalidRegion, i, p)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRegion, r.Kind)
	}
	return nil
}

// Boundary materializes the region as a closed ring. Point markers become a
// small square, circles a regular polygon on the sphere.
func (r Region) Boundary() (orb.Ring, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindPoint:
		return Close(MarkerSquare(r.Center, DefaultMarkerMeters)), nil
	case KindCircle:
		return CircleBoundary(r.Center, r.RadiusMeters, DefaultCircleSteps), nil
	default:
		return Close(r.Vertices), nil
	}
}

// AreaSquareMeters returns the spherical area enclosed by the boundary
func (r Region) AreaSquareMeters() (float64, error) {
	ring, err := r.Boundary()
	if err != nil {
		return 0, err
	}
	pts := make([]s2.Point, 0, len(ring))
	for _, p := range Open(ring) {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon())))
	}
	loop := s2.LoopFromPoints(pts)
	// Drawn polygons may be clockwise; s2 then returns the complement.
	area := loop.Area()
	if area > 2*math.Pi {
		area = 4*math.Pi - area
	}
	return area * EarthRadiusMeters * EarthRadiusMeters, nil
}

// CircleBoundary returns a closed ring approximating a circle of the given
// radius in metres around center.
func CircleBoundary(center orb.Point, radiusMeters float64, steps int) orb.Ring {
	if steps < 3 {
		steps = DefaultCircleSteps
	}
	c := s2.PointFromLatLng(s2.LatLngFromDegrees(center.Lat(), center.Lon()))
	angle := s1.Angle(radiusMeters / EarthRadiusMeters)
	loop := s2.RegularLoop(c, angle, steps)

	ring := make(orb.Ring, 0, steps+1)
	for _, v := range loop.Vertices() {
		ll := s2.LatLngFromPoint(v)
		ring = append(ring, orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	return Close(ring)
}

// MarkerSquare returns the four corners of a square extending meters in each
// direction from center, clockwise from the north-west corner.
func MarkerSquare(center orb.Point, meters float64) orb.Ring {
	lon, lat := center.Lon(), center.Lat()
	dy := meters / metersPerDegreeLat
	dx := meters / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))

	return orb.Ring{
		{lon - dx, lat + dy},
		{lon + dx, lat + dy},
		{lon + dx, lat - dy},
		{lon - dx, lat - dy},
	}
}

// Close returns the ring with its first vertex repeated at the end. Rings
// that are already closed or empty are returned unchanged.
func Close(r orb.Ring) orb.Ring {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

// Open returns the ring without a trailing closing vertex
func Open(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

func validLonLat(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
