package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
)

var (
	// ErrInvalidConfig wraps every validation failure
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrReadOnly is returned when writing through a read-only provider
	ErrReadOnly = errors.New("configuration provider is read-only")
)

// Search and server defaults
const (
	DefaultCloudCover    = 30
	DefaultSnowCover     = 50
	DefaultLimit         = 20
	DefaultRadiusMeters  = 10
	DefaultPort          = 8080
	DefaultSQLitePath    = "remotendvi.db"
	DefaultFetchTimeout  = "60s"
	DefaultCatalogFormat = "stac"
	dateLayout           = "2006-01-02"
)

// ApplyDefaults fills every unset field with its default
func (c *ConfigData) ApplyDefaults() {
	cat := &c.Catalog
	if cat.Backend == "" {
		cat.Backend = DefaultCatalogFormat
	}
	if cat.SearchURL == "" {
		cat.SearchURL = scene.DefaultSearchURL
	}
	if cat.TokenURL == "" {
		cat.TokenURL = scene.DefaultTokenURL
	}
	if cat.Collection == "" {
		cat.Collection = scene.DefaultCollection
	}
	if cat.MaxPages == 0 {
		cat.MaxPages = 1
	}
	keys := scene.DefaultAssetKeys()
	if cat.Assets.Red == "" {
		cat.Assets.Red = keys.Red
	}
	if cat.Assets.NIR == "" {
		cat.Assets.NIR = keys.NIR
	}
	if cat.Assets.SCL == "" {
		cat.Assets.SCL = keys.SCL
	}
	if cat.Assets.Preview == "" {
		cat.Assets.Preview = keys.Preview
	}
	if cat.Search.Temporal == "" {
		cat.Search.Temporal = string(scene.TemporalDuring)
	}
	if cat.Search.Spatial == "" {
		cat.Search.Spatial = string(scene.SpatialIntersects)
	}
	if cat.Search.CloudCover == 0 {
		cat.Search.CloudCover = DefaultCloudCover
	}
	if cat.Search.SnowCover == 0 {
		cat.Search.SnowCover = DefaultSnowCover
	}
	if cat.Search.Limit == 0 {
		cat.Search.Limit = DefaultLimit
	}
	if cat.Fetch.Timeout == "" {
		cat.Fetch.Timeout = DefaultFetchTimeout
	}

	a := &c.Analysis
	if a.CoverageThreshold == 0 {
		a.CoverageThreshold = 80
	}
	if a.Filter == "" {
		a.Filter = string(ndvi.FilterNone)
	}
	if a.RejectPolicy == "" {
		a.RejectPolicy = string(ndvi.PolicyStrict)
	}
	if a.SmoothingWindow == 0 {
		a.SmoothingWindow = 1
	}
	if a.Detector == (DetectorData{}) {
		d := series.DefaultDetectorParams()
		a.Detector = DetectorData{Window: d.Window, Threshold: d.Threshold, MinSeparation: d.MinSeparation}
	}

	for i := range c.Regions {
		r := &c.Regions[i]
		if r.Context == "" {
			r.Context = string(series.ContextMain)
		}
		if r.Kind == "circle" && r.RadiusMeters == 0 {
			r.RadiusMeters = DefaultRadiusMeters
		}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

// Validate checks ranges and names. It does not touch the network or the
// filesystem.
func (c *ConfigData) Validate() error {
	switch c.Catalog.Backend {
	case "stac":
	case "file":
		if c.Catalog.File == "" {
			return fmt.Errorf("%w: file catalog needs a file", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown catalog backend %q", ErrInvalidConfig, c.Catalog.Backend)
	}
	if err := c.Catalog.Search.validate(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Catalog.Fetch.Timeout); err != nil {
		return fmt.Errorf("%w: fetch timeout: %v", ErrInvalidConfig, err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	for i, r := range c.Regions {
		if !series.Context(r.Context).Valid() {
			return fmt.Errorf("%w: region %d: unknown context %q", ErrInvalidConfig, i, r.Context)
		}
		if r.File == "" && r.Kind == "" {
			return fmt.Errorf("%w: region %d needs a kind or a file", ErrInvalidConfig, i)
		}
	}
	switch c.Storage.Backend {
	case "sqlite", "none":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres storage needs a dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return fmt.Errorf("%w: cert and key must be set together", ErrInvalidConfig)
	}
	return nil
}

func (s SearchData) validate() error {
	if s.CloudCover < 0 || s.CloudCover > 100 || s.SnowCover < 0 || s.SnowCover > 100 {
		return fmt.Errorf("%w: cloud and snow cover must be within 0-100", ErrInvalidConfig)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: negative search limit", ErrInvalidConfig)
	}
	switch scene.TemporalOp(s.Temporal) {
	case scene.TemporalDuring, scene.TemporalAfter, scene.TemporalBefore:
	default:
		return fmt.Errorf("%w: unknown temporal operator %q", ErrInvalidConfig, s.Temporal)
	}
	switch scene.SpatialOp(s.Spatial) {
	case scene.SpatialIntersects, scene.SpatialContains, scene.SpatialWithin:
	default:
		return fmt.Errorf("%w: unknown spatial operator %q", ErrInvalidConfig, s.Spatial)
	}
	for _, d := range []string{s.Start, s.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidConfig, d)
		}
	}
	return nil
}

// Validate checks coverage, smoothing, detector and filter settings
func (a AnalysisData) Validate() error {
	if a.CoverageThreshold < 0 || a.CoverageThreshold > 100 {
		return fmt.Errorf("%w: coverage threshold %g outside 0-100", ErrInvalidConfig, a.CoverageThreshold)
	}
	if a.SmoothingWindow < 1 {
		return fmt.Errorf("%w: smoothing window must be at least 1", ErrInvalidConfig)
	}
	if a.Detector.Window < 1 || a.Detector.Threshold <= 0 || a.Detector.MinSeparation < 0 {
		return fmt.Errorf("%w: detector needs window ≥ 1, threshold > 0 and separation ≥ 0", ErrInvalidConfig)
	}
	if a.Workers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidConfig)
	}
	if _, err := ndvi.ParseFilterKind(a.Filter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := ndvi.ParseRejectPolicy(a.RejectPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SearchDates parses the configured start and end dates. Unset dates are
// zero.
func (s SearchData) SearchDates() (start, end time.Time, err error) {
	if s.Start != "" {
		if start, err = time.Parse(dateLayout, s.Start); err != nil {
			return
		}
	}
	if s.End != "" {
		end, err = time.Parse(dateLayout, s.End)
	}
	return
}

// Query builds the scene query of a run. A missing start defaults to one
// month before now and a missing end to now, as far as the temporal
// operator uses them.
func (s SearchData) Query(now time.Time) (scene.Query, error) {
	start, end, err := s.SearchDates()
	if err != nil {
		return scene.Query{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if start.IsZero() {
		start = now.AddDate(0, -1, 0)
	}
	if end.IsZero() {
		end = now
	}
	return scene.Query{
		Start:      start,
		End:        end,
		Temporal:   scene.TemporalOp(s.Temporal),
		Spatial:    scene.SpatialOp(s.Spatial),
		CloudCover: s.CloudCover,
		SnowCover:  s.SnowCover,
		Limit:      s.Limit,
	}, nil
}
