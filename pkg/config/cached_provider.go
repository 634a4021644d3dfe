package config

import (
	"sync"
)

// CachedProvider wraps a ConfigProvider and serves every section from one
// loaded copy until Invalidate or a successful save
type CachedProvider struct {
	provider ConfigProvider
	mu       sync.RWMutex
	config   *ConfigData
}

// NewCachedProvider creates a caching wrapper around provider
func NewCachedProvider(provider ConfigProvider) *CachedProvider {
	return &CachedProvider{provider: provider}
}

// LoadConfig returns the cached configuration, loading it on first use
func (c *CachedProvider) LoadConfig() (*ConfigData, error) {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config != nil {
		return c.config, nil
	}
	cfg, err := c.provider.LoadConfig()
	if err != nil {
		return nil, err
	}
	c.config = cfg
	return cfg, nil
}

// Invalidate drops the cached copy
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	c.config = nil
	c.mu.Unlock()
}

func (c *CachedProvider) GetCatalog() (*CatalogData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Catalog, nil
}

func (c *CachedProvider) GetAnalysis() (*AnalysisData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Analysis, nil
}

func (c *CachedProvider) GetRegions() ([]RegionData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Regions, nil
}

func (c *CachedProvider) GetStorage() (*StorageData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Storage, nil
}

func (c *CachedProvider) GetServer() (*ServerData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Server, nil
}

// SaveAnalysis writes through to the wrapped provider
func (c *CachedProvider) SaveAnalysis(a AnalysisData) error {
	if err := c.provider.SaveAnalysis(a); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

func (c *CachedProvider) IsReadOnly() bool {
	return c.provider.IsReadOnly()
}

func (c *CachedProvider) Close() error {
	return c.provider.Close()
}

var _ ConfigProvider = (*CachedProvider)(nil)
