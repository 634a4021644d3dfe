// Package migrate applies versioned SQL migrations to a SQLite database.
// Migrations are files named 001_name.up.sql and 001_name.down.sql, usually
// read from an embedded filesystem.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultTable tracks applied versions
const DefaultTable = "schema_migrations"

var fileRegex = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Load reads every migration under dir in fsys, sorted by version
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", dir, err)
	}

	byVersion := make(map[int]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := fileRegex.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		content, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: strings.ReplaceAll(matches[2], "_", " ")}
			byVersion[version] = m
		}
		if matches[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator handles the execution of migrations
type Migrator struct {
	db         *sql.DB
	table      string
	migrations []Migration
}

// NewMigrator creates a migrator for the given migrations. An empty table
// name selects DefaultTable.
func NewMigrator(db *sql.DB, table string, migrations []Migration) *Migrator {
	if table == "" {
		table = DefaultTable
	}
	return &Migrator{db: db, table: table, migrations: migrations}
}

// Latest is the highest known migration version
func (m *Migrator) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// CurrentVersion returns the highest applied version, 0 on a new database
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.createTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.table)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// MigrateUp applies all pending migrations and returns the ones it applied
func (m *Migrator) MigrateUp(ctx context.Context) ([]Migration, error) {
	return m.MigrateTo(ctx, m.Latest())
}

// MigrateTo moves the schema up or down to target and returns the
// migrations it ran, in execution order
func (m *Migrator) MigrateTo(ctx context.Context, target int) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if target > m.Latest() {
		return nil, fmt.Errorf("target version %d is beyond latest migration %d", target, m.Latest())
	}

	var ran []Migration
	if target >= current {
		for _, mig := range m.migrations {
			if mig.Version > current && mig.Version <= target {
				if err := m.execute(ctx, mig, true); err != nil {
					return ran, fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
				}
				ran = append(ran, mig)
			}
		}
		return ran, nil
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if mig.Version > target && mig.Version <= current {
			if err := m.execute(ctx, mig, false); err != nil {
				return ran, fmt.Errorf("failed to roll back migration %d: %w", mig.Version, err)
			}
			ran = append(ran, mig)
		}
	}
	return ran, nil
}

// Pending returns the migrations not yet applied
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) createTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, m.table))
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// execute runs one migration and records the new version in the same
// transaction
func (m *Migrator) execute(ctx context.Context, mig Migration, up bool) error {
	stmt, direction := mig.Up, "up"
	if !up {
		stmt, direction = mig.Down, "down"
	}
	if strings.TrimSpace(stmt) == "" {
		return fmt.Errorf("migration %d has no %s SQL", mig.Version, direction)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if up {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)", m.table), mig.Version)
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE version >= ?", m.table), mig.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}
