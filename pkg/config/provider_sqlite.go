package config

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/remotendvi/pkg/migrate"
)

// Section keys of the settings table
const (
	sectionCatalog  = "catalog"
	sectionAnalysis = "analysis"
	sectionStorage  = "storage"
	sectionServer   = "server"
)

//go:embed migrations/*.sql
var configMigrations embed.FS

// Migrations returns the schema migrations of the SQLite configuration
// database
func Migrations() ([]migrate.Migration, error) {
	return migrate.Load(configMigrations, "migrations")
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Each section is stored as one JSON document; regions get a row each.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider, creating
// the tables when the database is new
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	migrations, err := Migrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := migrate.NewMigrator(db, "", migrations).MigrateUp(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database. Missing
// sections take their defaults.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	for section, dst := range map[string]any{
		sectionCatalog:  &config.Catalog,
		sectionAnalysis: &config.Analysis,
		sectionStorage:  &config.Storage,
		sectionServer:   &config.Server,
	} {
		if err := s.section(section, dst); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", section, err)
		}
	}

	regions, err := s.GetRegions()
	if err != nil {
		return nil, fmt.Errorf("failed to load regions: %w", err)
	}
	config.Regions = regions

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// section decodes the JSON document of one section into dst, leaving dst
// untouched when the section was never saved
func (s *SQLiteProvider) section(name string, dst any) error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE section = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), dst)
}

func (s *SQLiteProvider) loaded() (*ConfigData, error) {
	return s.LoadConfig()
}

// GetCatalog returns the catalog configuration
func (s *SQLiteProvider) GetCatalog() (*CatalogData, error) {
	c, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Catalog, nil
}

// GetAnalysis returns the analysis configuration
func (s *SQLiteProvider) GetAnalysis() (*AnalysisData, error) {
	c, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Analysis, nil
}

// GetStorage returns the storage configuration
func (s *SQLiteProvider) GetStorage() (*StorageData, error) {
	c, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetServer returns the REST server configuration
func (s *SQLiteProvider) GetServer() (*ServerData, error) {
	c, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Server, nil
}

// GetRegions returns the stored startup regions in insertion order
func (s *SQLiteProvider) GetRegions() ([]RegionData, error) {
	rows, err := s.db.Query(`SELECT context, region FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	defer rows.Close()

	var regions []RegionData
	for rows.Next() {
		var ctx, value string
		if err := rows.Scan(&ctx, &value); err != nil {
			return nil, fmt.Errorf("failed to scan region row: %w", err)
		}
		var r RegionData
		if err := json.Unmarshal([]byte(value), &r); err != nil {
			return nil, fmt.Errorf("failed to decode region: %w", err)
		}
		r.Context = ctx
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// IsReadOnly returns false since SQLite supports write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the complete configuration in the database
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for section, value := range map[string]any{
		sectionCatalog:  configData.Catalog,
		sectionAnalysis: configData.Analysis,
		sectionStorage:  configData.Storage,
		sectionServer:   configData.Server,
	} {
		if err := putSection(tx, section, value); err != nil {
			return fmt.Errorf("failed to save %s config: %w", section, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM regions`); err != nil {
		return fmt.Errorf("failed to clear regions: %w", err)
	}
	for i, r := range configData.Regions {
		value, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO regions (context, region) VALUES (?, ?)`, r.Context, string(value)); err != nil {
			return fmt.Errorf("failed to insert region %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// SaveAnalysis replaces the analysis section
func (s *SQLiteProvider) SaveAnalysis(a AnalysisData) error {
	if err := a.Validate(); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := putSection(tx, sectionAnalysis, a); err != nil {
		return fmt.Errorf("failed to save analysis config: %w", err)
	}
	return tx.Commit()
}

func putSection(tx *sql.Tx, section string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO settings (section, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(section) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		section, string(data))
	return err
}

var (
	_ ConfigProvider = (*SQLiteProvider)(nil)
	_ ConfigProvider = (*YAMLProvider)(nil)
)
