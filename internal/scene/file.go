package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// FileCatalog serves scenes from a STAC item collection saved on disk.
// Queries are applied locally: cover limits, the date interval and a
// bounding box overlap with the region.
type FileCatalog struct {
	Path   string
	Keys   AssetKeys
	logger *zap.SugaredLogger
}

// NewFileCatalog returns a catalog reading path on every search
func NewFileCatalog(path string, logger *zap.SugaredLogger) *FileCatalog {
	return &FileCatalog{Path: path, Keys: DefaultAssetKeys(), logger: logger}
}

// Search reads the collection and returns the matching scenes
func (f *FileCatalog) Search(ctx context.Context, q Query) ([]Descriptor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading scene collection: %w", err)
	}
	scenes, err := ParseItemCollection(data, f.Keys)
	if err != nil {
		return nil, err
	}

	region := q.Region.Bound()
	var out []Descriptor
	for _, d := range scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.CloudCover > q.CloudCover || d.SnowCover > q.SnowCover {
			continue
		}
		if !inInterval(d.Time(), q) {
			continue
		}
		if !d.BBox.IsZero() && !d.BBox.Intersects(region) {
			continue
		}
		out = append(out, d)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	f.logger.Infof("scene collection %s matched %d of %d scene(s)", f.Path, len(out), len(scenes))
	return out, nil
}

// ParseItemCollection decodes a STAC FeatureCollection into descriptors in
// ascending datetime order. Items missing a band are dropped.
func ParseItemCollection(data []byte, keys AssetKeys) ([]Descriptor, error) {
	var coll itemCollection
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, fmt.Errorf("unable to decode scene collection: %w", err)
	}
	out := make([]Descriptor, 0, len(coll.Features))
	for _, it := range coll.Features {
		d, err := it.descriptor(keys)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	SortByDatetime(out)
	return out, nil
}

// inInterval compares by calendar day, matching the date-only interval a
// STAC search is sent
func inInterval(t time.Time, q Query) bool {
	day := t.UTC().Truncate(24 * time.Hour)
	start := q.Start.UTC().Truncate(24 * time.Hour)
	end := q.End.UTC().Truncate(24 * time.Hour)
	switch q.Temporal {
	case TemporalAfter:
		return !day.Before(start)
	case TemporalBefore:
		return !day.After(end)
	default:
		return !day.Before(start) && !day.After(end)
	}
}

var (
	_ Catalog = (*FileCatalog)(nil)
	_ Catalog = (*STACClient)(nil)
)
