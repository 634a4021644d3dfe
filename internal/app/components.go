package app

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/raster"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
)

// StartupRegion is a region run once when the service starts
type StartupRegion struct {
	Context series.Context
	Region  region.Region
}

// NewCatalog builds the scene catalog the configuration selects
func NewCatalog(c config.CatalogData, logger *zap.SugaredLogger) (scene.Catalog, error) {
	keys := scene.AssetKeys{Red: c.Assets.Red, NIR: c.Assets.NIR, SCL: c.Assets.SCL, Preview: c.Assets.Preview}
	switch c.Backend {
	case "file":
		fc := scene.NewFileCatalog(c.File, logger)
		fc.Keys = keys
		return fc, nil
	case "stac", "":
		client := scene.NewSTACClient(c.SearchURL, scene.NewTokenSigner(c.TokenURL), logger)
		client.Collection = c.Collection
		client.Keys = keys
		if c.MaxPages > 0 {
			client.MaxPages = c.MaxPages
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", c.Backend)
	}
}

// NewDecoder builds the GeoTIFF decoder band rasters are read through
func NewDecoder(f config.AssetFetchData) (*raster.GeoTIFFDecoder, error) {
	timeout, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch timeout %q: %w", f.Timeout, err)
	}
	fetcher := raster.NewSourceFetcher(&http.Client{Timeout: timeout})
	return raster.NewGeoTIFFDecoder(fetcher), nil
}

// ProcessorSettings converts the analysis configuration into per-scene
// settings
func ProcessorSettings(a config.AnalysisData) (pipeline.Settings, error) {
	filter, err := ndvi.ParseFilterKind(a.Filter)
	if err != nil {
		return pipeline.Settings{}, err
	}
	policy, err := ndvi.ParseRejectPolicy(a.RejectPolicy)
	if err != nil {
		return pipeline.Settings{}, err
	}
	return pipeline.Settings{
		CoverageThreshold: a.CoverageThreshold,
		Filter:            filter,
		RejectSet:         policy.Set(),
	}, nil
}

// AnalysisParams converts the analysis configuration into series parameters
func AnalysisParams(a config.AnalysisData) pipeline.AnalysisParams {
	return pipeline.AnalysisParams{
		SmoothingWindow: a.SmoothingWindow,
		Detector: series.DetectorParams{
			Window:        a.Detector.Window,
			Threshold:     a.Detector.Threshold,
			MinSeparation: a.Detector.MinSeparation,
		},
	}
}

// StorageConfig converts the storage configuration
func StorageConfig(s config.StorageData) storage.Config {
	return storage.Config{Backend: s.Backend, SQLitePath: s.SQLitePath, PostgresDSN: s.PostgresDSN}
}

// StartupRegions resolves the configured regions. A region file may hold
// several regions; only the first is used and the rest are logged.
func StartupRegions(regions []config.RegionData, logger *zap.SugaredLogger) ([]StartupRegion, error) {
	out := make([]StartupRegion, 0, len(regions))
	for i, rd := range regions {
		reg, err := resolveRegion(rd, logger)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if err := reg.Validate(); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		out = append(out, StartupRegion{Context: series.Context(rd.Context), Region: reg})
	}
	return out, nil
}

func resolveRegion(rd config.RegionData, logger *zap.SugaredLogger) (region.Region, error) {
	if rd.File == "" {
		return inlineRegion(rd)
	}

	data, err := os.ReadFile(rd.File)
	if err != nil {
		return region.Region{}, fmt.Errorf("reading region file: %w", err)
	}
	var parsed []region.Region
	switch strings.ToLower(filepath.Ext(rd.File)) {
	case ".geojson":
		parsed, err = region.FromGeoJSON(data)
	default:
		parsed, err = region.ParseROI(data)
	}
	if err != nil {
		return region.Region{}, fmt.Errorf("%s: %w", rd.File, err)
	}
	if len(parsed) == 0 {
		return region.Region{}, fmt.Errorf("%s: %w: no regions in file", rd.File, region.ErrInvalidRegion)
	}
	if len(parsed) > 1 {
		logger.Warnf("%s holds %d regions; using %s", rd.File, len(parsed), parsed[0].ID)
	}
	reg := parsed[0]
	if rd.ID != "" {
		reg.ID = rd.ID
	}
	return reg, nil
}

func inlineRegion(rd config.RegionData) (region.Region, error) {
	reg := region.Region{ID: rd.ID, Kind: region.Kind(rd.Kind)}
	switch reg.Kind {
	case region.KindPoint, region.KindCircle:
		reg.Center = orb.Point{rd.Longitude, rd.Latitude}
		reg.RadiusMeters = rd.RadiusMeters
	case region.KindPolygon, "polygon":
		reg.Kind = region.KindPolygon
		for j, v := range rd.Vertices {
			if len(v) != 2 {
				return region.Region{}, fmt.Errorf("%w: vertex %d needs [lon, lat]", region.ErrInvalidRegion, j)
			}
			reg.Vertices = append(reg.Vertices, orb.Point{v[0], v[1]})
		}
		reg.Vertices = region.Close(reg.Vertices)
	default:
		return region.Region{}, fmt.Errorf("%w: unknown kind %q", region.ErrInvalidRegion, rd.Kind)
	}
	if reg.ID == "" {
		reg.ID = string(reg.Kind)
	}
	return reg, nil
}
