// Package scene discovers satellite scenes covering a region, either from a
// STAC search endpoint or from a saved STAC item collection.
package scene

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DefaultCollection is the Sentinel-2 level 2A collection id
const DefaultCollection = "sentinel-2-l2a"

var (
	ErrMissingAsset   = errors.New("scene is missing a required asset")
	ErrInvalidQuery   = errors.New("invalid scene query")
	ErrCatalogRequest = errors.New("catalog request failed")
)

// Assets holds the hrefs of the bands a sample is computed from
type Assets struct {
	Red     string `json:"red"`
	NIR     string `json:"nir"`
	SCL     string `json:"scl"`
	Preview string `json:"preview"`
}

// Descriptor is one scene as yielded by a catalog
type Descriptor struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Datetime   string    `json:"datetime"`
	BBox       orb.Bound `json:"bbox"`
	Assets     Assets    `json:"assets"`
	CloudCover float64   `json:"cloud_cover"`
	SnowCover  float64   `json:"snow_cover"`
}

// Time parses the acquisition datetime. Unparseable values yield the zero time.
func (d Descriptor) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, d.Datetime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AssetKeys names the STAC asset entries that hold each band
type AssetKeys struct {
	Red     string `json:"red" yaml:"red"`
	NIR     string `json:"nir" yaml:"nir"`
	SCL     string `json:"scl" yaml:"scl"`
	Preview string `json:"preview" yaml:"preview"`
}

// DefaultAssetKeys returns the Sentinel-2 L2A band names
func DefaultAssetKeys() AssetKeys {
	return AssetKeys{Red: "B04", NIR: "B08", SCL: "SCL", Preview: "rendered_preview"}
}

// TemporalOp selects how the query's dates bound the acquisition time
type TemporalOp string

const (
	TemporalDuring TemporalOp = "t_during"
	TemporalAfter  TemporalOp = "t_after"
	TemporalBefore TemporalOp = "t_before"
)

// SpatialOp selects how scene footprints relate to the region
type SpatialOp string

const (
	SpatialIntersects SpatialOp = "s_intersects"
	SpatialContains   SpatialOp = "s_contains"
	SpatialWithin     SpatialOp = "s_within"
)

// Query describes a scene search over one region
type Query struct {
	Region     orb.Ring
	Start      time.Time
	End        time.Time
	Temporal   TemporalOp
	Spatial    SpatialOp
	CloudCover float64
	SnowCover  float64
	Limit      int
}

// Validate checks the query is complete for its temporal operator
func (q Query) Validate() error {
	if len(q.Region) < 3 {
		return fmt.Errorf("%w: region needs at least 3 vertices", ErrInvalidQuery)
	}
	switch q.Temporal {
	case TemporalDuring:
		if q.Start.IsZero() || q.End.IsZero() {
			return fmt.Errorf("%w: t_during needs a start and an end date", ErrInvalidQuery)
		}
		if q.End.Before(q.Start) {
			return fmt.Errorf("%w: end date is before start date", ErrInvalidQuery)
		}
	case TemporalAfter:
		if q.Start.IsZero() {
			return fmt.Errorf("%w: t_after needs a start date", ErrInvalidQuery)
		}
	case TemporalBefore:
		if q.End.IsZero() {
			return fmt.Errorf("%w: t_before needs an end date", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown temporal operator %q", ErrInvalidQuery, q.Temporal)
	}
	switch q.Spatial {
	case SpatialIntersects, SpatialContains, SpatialWithin:
	default:
		return fmt.Errorf("%w: unknown spatial operator %q", ErrInvalidQuery, q.Spatial)
	}
	if q.CloudCover < 0 || q.CloudCover > 100 || q.SnowCover < 0 || q.SnowCover > 100 {
		return fmt.Errorf("%w: cover limits must be within 0-100", ErrInvalidQuery)
	}
	return nil
}

// Interval renders the STAC datetime interval, date only, open ended on the
// side the operator leaves free.
func (q Query) Interval() string {
	const day = "2006-01-02"
	switch q.Temporal {
	case TemporalAfter:
		return q.Start.UTC().Format(day) + "/"
	case TemporalBefore:
		return "/" + q.End.UTC().Format(day)
	default:
		return q.Start.UTC().Format(day) + "/" + q.End.UTC().Format(day)
	}
}

// Catalog yields the scenes matching a query in ascending datetime order
type Catalog interface {
	Search(ctx context.Context, q Query) ([]Descriptor, error)
}

// SortByDatetime orders scenes chronologically, keeping input order for ties
func SortByDatetime(scenes []Descriptor) {
	slices.SortStableFunc(scenes, func(a, b Descriptor) int {
		if c := a.Time().Compare(b.Time()); c != 0 {
			return c
		}
		return strings.Compare(a.Datetime, b.Datetime)
	})
}
