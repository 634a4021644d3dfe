package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetCatalog() (*CatalogData, error)
	GetAnalysis() (*AnalysisData, error)
	GetRegions() ([]RegionData, error)
	GetStorage() (*StorageData, error)
	GetServer() (*ServerData, error)

	// SaveAnalysis persists analysis parameters changed at runtime. Read-only
	// providers return ErrReadOnly.
	SaveAnalysis(a AnalysisData) error

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Catalog  CatalogData  `json:"catalog" yaml:"catalog"`
	Analysis AnalysisData `json:"analysis" yaml:"analysis"`
	Regions  []RegionData `json:"regions,omitempty" yaml:"regions,omitempty"`
	Storage  StorageData  `json:"storage" yaml:"storage"`
	Server   ServerData   `json:"server" yaml:"server"`
}

// CatalogData configures where scenes are searched
type CatalogData struct {
	Backend    string         `json:"backend,omitempty" yaml:"backend,omitempty"` // stac or file
	SearchURL  string         `json:"search_url,omitempty" yaml:"search-url,omitempty"`
	TokenURL   string         `json:"token_url,omitempty" yaml:"token-url,omitempty"`
	Collection string         `json:"collection,omitempty" yaml:"collection,omitempty"`
	File       string         `json:"file,omitempty" yaml:"file,omitempty"`
	MaxPages   int            `json:"max_pages,omitempty" yaml:"max-pages,omitempty"`
	Assets     AssetKeysData  `json:"assets,omitempty" yaml:"assets,omitempty"`
	Search     SearchData     `json:"search" yaml:"search"`
	Fetch      AssetFetchData `json:"fetch,omitempty" yaml:"fetch,omitempty"`
}

// AssetKeysData names the STAC asset entries of each band
type AssetKeysData struct {
	Red     string `json:"red,omitempty" yaml:"red,omitempty"`
	NIR     string `json:"nir,omitempty" yaml:"nir,omitempty"`
	SCL     string `json:"scl,omitempty" yaml:"scl,omitempty"`
	Preview string `json:"preview,omitempty" yaml:"preview,omitempty"`
}

// SearchData holds the default scene query of a run
type SearchData struct {
	Start      string  `json:"start,omitempty" yaml:"start,omitempty"` // YYYY-MM-DD
	End        string  `json:"end,omitempty" yaml:"end,omitempty"`
	Temporal   string  `json:"temporal,omitempty" yaml:"temporal,omitempty"`
	Spatial    string  `json:"spatial,omitempty" yaml:"spatial,omitempty"`
	CloudCover float64 `json:"cloud_cover,omitempty" yaml:"cloud-cover,omitempty"`
	SnowCover  float64 `json:"snow_cover,omitempty" yaml:"snow-cover,omitempty"`
	Limit      int     `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// AssetFetchData configures how band rasters are downloaded
type AssetFetchData struct {
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AnalysisData holds the quality and series parameters
type AnalysisData struct {
	CoverageThreshold float64      `json:"coverage_threshold" yaml:"coverage-threshold"`
	Filter            string       `json:"filter,omitempty" yaml:"filter,omitempty"`
	RejectPolicy      string       `json:"reject_policy,omitempty" yaml:"reject-policy,omitempty"`
	SmoothingWindow   int          `json:"smoothing_window" yaml:"smoothing-window"`
	Detector          DetectorData `json:"detector" yaml:"detector"`
	Workers           int          `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// DetectorData configures change-point detection. A window of 1 disables it.
type DetectorData struct {
	Window        int     `json:"window" yaml:"window"`
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	MinSeparation int     `json:"min_separation" yaml:"min-separation"`
}

// RegionData is a region to run at startup. Either the inline shape or a
// File (ROI JSON or GeoJSON) is given.
type RegionData struct {
	Context      string      `json:"context" yaml:"context"` // main or comparison
	ID           string      `json:"id,omitempty" yaml:"id,omitempty"`
	Kind         string      `json:"kind,omitempty" yaml:"kind,omitempty"`
	Latitude     float64     `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude    float64     `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	RadiusMeters float64     `json:"radius_meters,omitempty" yaml:"radius-meters,omitempty"`
	Vertices     [][]float64 `json:"vertices,omitempty" yaml:"vertices,omitempty"` // [lon, lat] pairs
	File         string      `json:"file,omitempty" yaml:"file,omitempty"`
}

// StorageData selects the run archive
type StorageData struct {
	Backend     string `json:"backend,omitempty" yaml:"backend,omitempty"` // sqlite, postgres or none
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite-path,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres-dsn,omitempty"`
}

// ServerData configures the REST server
type ServerData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen-addr,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty" yaml:"enable-cors,omitempty"`
}
