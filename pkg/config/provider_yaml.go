package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from the YAML file, fills in
// defaults and validates the result
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	y.config = config
	return config, nil
}

// ParseYAML decodes, defaults and validates a YAML configuration document
func ParseYAML(data []byte) (*ConfigData, error) {
	config := &ConfigData{}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config, nil
}

// GetCatalog returns the catalog configuration
func (y *YAMLProvider) GetCatalog() (*CatalogData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Catalog, nil
}

// GetAnalysis returns the analysis configuration
func (y *YAMLProvider) GetAnalysis() (*AnalysisData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Analysis, nil
}

// GetRegions returns the startup regions
func (y *YAMLProvider) GetRegions() ([]RegionData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return c.Regions, nil
}

// GetStorage returns the storage configuration
func (y *YAMLProvider) GetStorage() (*StorageData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetServer returns the REST server configuration
func (y *YAMLProvider) GetServer() (*ServerData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Server, nil
}

// SaveAnalysis is not supported; YAML files are edited by hand
func (y *YAMLProvider) SaveAnalysis(AnalysisData) error {
	return ErrReadOnly
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
