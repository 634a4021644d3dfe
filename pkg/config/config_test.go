package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/remotendvi/internal/scene"
)

const sampleYAML = `
catalog:
  search:
    start: "2025-03-01"
    end: "2025-06-30"
    cloud-cover: 20
analysis:
  coverage-threshold: 70
  filter: IQR
  smoothing-window: 3
  detector:
    window: 4
    threshold: 2
    min-separation: 1
regions:
  - id: field-1
    kind: circle
    latitude: 45.46
    longitude: 9.19
  - context: comparison
    file: roi.json
storage:
  backend: none
server:
  port: 9000
`

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "stac", cfg.Catalog.Backend)
	assert.Equal(t, "sentinel-2-l2a", cfg.Catalog.Collection)
	assert.Equal(t, "B04", cfg.Catalog.Assets.Red)
	assert.Equal(t, 20.0, cfg.Catalog.Search.CloudCover)
	assert.Equal(t, float64(DefaultSnowCover), cfg.Catalog.Search.SnowCover)
	assert.Equal(t, "t_during", cfg.Catalog.Search.Temporal)

	assert.Equal(t, 70.0, cfg.Analysis.CoverageThreshold)
	assert.Equal(t, "strict", cfg.Analysis.RejectPolicy)
	assert.Equal(t, DetectorData{Window: 4, Threshold: 2, MinSeparation: 1}, cfg.Analysis.Detector)

	require.Len(t, cfg.Regions, 2)
	assert.Equal(t, "main", cfg.Regions[0].Context)
	assert.Equal(t, float64(DefaultRadiusMeters), cfg.Regions[0].RadiusMeters)
	assert.Equal(t, "comparison", cfg.Regions[1].Context)

	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.Empty(t, cfg.Storage.SQLitePath)
	assert.Equal(t, 9000, cfg.Server.Port)

	start, end, err := cfg.Catalog.Search.SearchDates()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", start.Format("2006-01-02"))
	assert.Equal(t, "2025-06-30", end.Format("2006-01-02"))
}

func TestParseYAMLDefaults(t *testing.T) {
	cfg, err := ParseYAML([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Analysis.CoverageThreshold)
	assert.Equal(t, 1, cfg.Analysis.SmoothingWindow)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, DefaultSQLitePath, cfg.Storage.SQLitePath)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestParseYAMLRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "bogus: 1"},
		{"coverage above 100", "analysis: {coverage-threshold: 120}"},
		{"bad filter", "analysis: {filter: median}"},
		{"bad policy", "analysis: {reject-policy: loose}"},
		{"negative smoothing", "analysis: {smoothing-window: -1}"},
		{"bad temporal op", "catalog: {search: {temporal: t_equals}}"},
		{"bad date", "catalog: {search: {start: 01/02/2025}}"},
		{"cloud cover out of range", "catalog: {search: {cloud-cover: 101}}"},
		{"file catalog without file", "catalog: {backend: file}"},
		{"unknown storage", "storage: {backend: influxdb}"},
		{"postgres without dsn", "storage: {backend: postgres}"},
		{"bad region context", "regions: [{context: side, kind: point}]"},
		{"region without shape", "regions: [{id: empty}]"},
		{"cert without key", "server: {cert: a.pem}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	p := NewYAMLProvider(path)
	assert.True(t, p.IsReadOnly())
	analysis, err := p.GetAnalysis()
	require.NoError(t, err)
	assert.Equal(t, "IQR", analysis.Filter)
	assert.ErrorIs(t, p.SaveAnalysis(*analysis), ErrReadOnly)

	_, err = NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.IsReadOnly())

	empty, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 80.0, empty.Analysis.CoverageThreshold)
	assert.Empty(t, empty.Regions)

	want, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, p.SaveConfig(want))

	got, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	analysis := got.Analysis
	analysis.SmoothingWindow = 5
	require.NoError(t, p.SaveAnalysis(analysis))
	reloaded, err := p.GetAnalysis()
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.SmoothingWindow)

	analysis.SmoothingWindow = 0
	assert.ErrorIs(t, p.SaveAnalysis(analysis), ErrInvalidConfig)
}

func TestCachedProvider(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	cached := NewCachedProvider(p)
	defer cached.Close()

	first, err := cached.LoadConfig()
	require.NoError(t, err)
	second, err := cached.LoadConfig()
	require.NoError(t, err)
	assert.Same(t, first, second)

	a := first.Analysis
	a.SmoothingWindow = 7
	require.NoError(t, cached.SaveAnalysis(a))
	got, err := cached.GetAnalysis()
	require.NoError(t, err)
	assert.Equal(t, 7, got.SmoothingWindow)
}

func TestSearchQuery(t *testing.T) {
	now := time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)

	q, err := SearchData{Temporal: "t_during", Spatial: "s_within", CloudCover: 30, SnowCover: 50, Limit: 20}.Query(now)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-15/2025-10-15", q.Interval())
	assert.Equal(t, scene.SpatialWithin, q.Spatial)
	assert.Equal(t, 20, q.Limit)

	q, err = SearchData{Start: "2025-01-15", Temporal: "t_after"}.Query(now)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15/", q.Interval())

	_, err = SearchData{End: "yesterday"}.Query(now)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
