package region

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// roiEntry is one element of an exported ROI file: {"zonal-1": {...}} or {"point": {...}}
type roiEntry struct {
	Coordinates json.RawMessage `json:"coordinates"`
	Radius      json.RawMessage `json:"radius"`
}

// ParseROI decodes an ROI file as written by the map exporter:
//
//	[{"zonal-1":{"coordinates":[[lng,lat],...]}}, {"point":{"coordinates":[[lng,lat]],"radius":10}}]
//
// A point with a radius becomes a circle region, a point without one a marker.
func ParseROI(data []byte) ([]Region, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: data must be an array of zones or points", ErrInvalidRegion)
	}

	regions := make([]Region, 0, len(items))
	for idx, item := range items {
		if len(item) != 1 {
			return nil, fmt.Errorf("%w: entry %d must have exactly one key", ErrInvalidRegion, idx)
		}
		for key, raw := range item {
			r, err := parseROIEntry(key, raw)
			if err != nil {
				return nil, err
			}
			regions = append(regions, r)
		}
	}
	return regions, nil
}

func parseROIEntry(key string, raw json.RawMessage) (Region, error) {
	var entry roiEntry
	if err := json.Unmarshal(raw, &entry); err != nil || len(entry.Coordinates) == 0 || string(entry.Coordinates) == "null" {
		return Region{}, fmt.Errorf("%w: missing 'coordinates' for '%s'", ErrInvalidRegion, key)
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(entry.Coordinates, &pairs); err != nil {
		return Region{}, fmt.Errorf("%w: 'coordinates' for '%s' must be an array", ErrInvalidRegion, key)
	}

	ring := make(orb.Ring, 0, len(pairs))
	for i, p := range pairs {
		var pair []any
		if err := json.Unmarshal(p, &pair); err != nil || len(pair) != 2 {
			return Region{}, invalidCoordinate(i, key)
		}
		lng, okLng := pair[0].(float64)
		lat, okLat := pair[1].(float64)
		if !okLng || !okLat {
			return Region{}, invalidCoordinate(i, key)
		}
		ring = append(ring, orb.Point{lng, lat})
	}

	switch {
	case strings.HasPrefix(key, string(KindPolygon)):
		if len(ring) < KindPolygon.MinVertices() {
			return Region{}, fmt.Errorf("%w: '%s' must have at least 3 coordinates", ErrInvalidRegion, key)
		}
		return Region{ID: key, Kind: KindPolygon, Vertices: Close(ring)}, nil

	case key == string(KindPoint):
		if len(ring) != 1 {
			return Region{}, fmt.Errorf("%w: 'point' must have exactly 1 coordinate", ErrInvalidRegion)
		}
		r := Region{ID: key, Kind: KindPoint, Center: ring[0]}
		if len(entry.Radius) > 0 && string(entry.Radius) != "null" {
			var radius float64
			if err := json.Unmarshal(entry.Radius, &radius); err != nil {
				return Region{}, fmt.Errorf("%w: 'radius' for 'point' must be a number if provided", ErrInvalidRegion)
			}
			if radius > 0 {
				r.Kind = KindCircle
				r.RadiusMeters = radius
			}
		}
		return r, nil
	}

	return Region{}, fmt.Errorf("%w: unknown entry '%s'", ErrInvalidRegion, key)
}

func invalidCoordinate(i int, key string) error {
	return fmt.Errorf("%w: invalid coordinate at index %d for '%s'. Expected [number, number]", ErrInvalidRegion, i, key)
}

// FromGeoJSON imports polygon and point regions from a GeoJSON Feature or
// FeatureCollection. Points take their radius from a "radius" property.
func FromGeoJSON(data []byte) ([]Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil || len(fc.Features) == 0 {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			return nil, fmt.Errorf("%w: not a GeoJSON feature or feature collection: %v", ErrInvalidRegion, ferr)
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(f)
	}

	var regions []Region
	for i, f := range fc.Features {
		id := fmt.Sprintf("%s-%d", KindPolygon, i+1)
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}

		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) == 0 {
				return nil, fmt.Errorf("%w: feature %d has an empty polygon", ErrInvalidRegion, i)
			}
			regions = append(regions, Region{ID: id, Kind: KindPolygon, Vertices: Close(g[0])})
		case orb.MultiPolygon:
			for j, p := range g {
				if len(p) == 0 {
					continue
				}
				regions = append(regions, Region{ID: fmt.Sprintf("%s.%d", id, j+1), Kind: KindPolygon, Vertices: Close(p[0])})
			}
		case orb.Point:
			r := Region{ID: id, Kind: KindPoint, Center: g}
			if radius := f.Properties.MustFloat64("radius", 0); radius > 0 {
				r.Kind = KindCircle
				r.RadiusMeters = radius
			}
			regions = append(regions, r)
		default:
			return nil, fmt.Errorf("%w: feature %d has unsupported geometry %T", ErrInvalidRegion, i, f.Geometry)
		}
	}

	for _, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return regions, nil
}
