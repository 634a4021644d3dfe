package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/pkg/migrate"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

// ArchiveMigrations returns the schema migrations of the SQLite run archive
func ArchiveMigrations() ([]migrate.Migration, error) {
	return migrate.Load(sqliteMigrations, "migrations")
}

// SQLiteStore archives runs in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if path == "" {
		path = "remotendvi.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	migrations, err := ArchiveMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	applied, err := migrate.NewMigrator(db, "", migrations).MigrateUp(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	for _, m := range applied {
		logger.Infof("applied run archive migration %03d (%s)", m.Version, m.Name)
	}
	logger.Infof("SQLite run archive ready at %s", path)
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// SaveRun stores the run and its samples in one transaction
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	regionJSON, err := json.Marshal(run.Region)
	if err != nil {
		return fmt.Errorf("encoding region: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, context, region, created_at, latency_ns) VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Context), string(regionJSON), run.CreatedAt.UnixNano(), int64(run.Latency))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, id, feature_id, datetime, preview,
			mean_ndvi, mean_ndvi_smoothed, median_ndvi, median_ndvi_smoothed,
			n_valid, valid_fraction, breakdown, filter, filter_fraction, ndvi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range series.AllSamples(run.Valid, run.Rejected) {
		breakdown, err := encodeBreakdown(sample.Rejection)
		if err != nil {
			return err
		}
		pixels, err := encodeNDVI(sample.NDVI)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, run.ID.String(), sample.ID, sample.FeatureID, sample.Datetime, sample.Preview,
			nullFloat(sample.MeanNDVI), nullFloat(sample.MeanNDVISmoothed),
			nullFloat(sample.MedianNDVI), nullFloat(sample.MedianNDVISmoothed),
			sample.ValidPixels, sample.ValidFraction, string(breakdown), string(sample.Filter), sample.FilterFraction, pixels)
		if err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", sample.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Debugf("archived %s run %s with %d sample(s)", run.Context, run.ID, len(run.Valid)+len(run.Rejected))
	return nil
}

// LatestRun loads the most recent run of c
func (s *SQLiteStore) LatestRun(ctx context.Context, c series.Context) (Run, error) {
	var (
		run        Run
		id         string
		regionJSON string
		created    int64
		latency    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, region, created_at, latency_ns FROM runs WHERE context = ? ORDER BY created_at DESC LIMIT 1`,
		string(c)).Scan(&id, &regionJSON, &created, &latency)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query latest run: %w", err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(regionJSON), &run.Region); err != nil {
		return Run{}, fmt.Errorf("decoding region: %w", err)
	}
	run.Context = c
	run.CreatedAt = time.Unix(0, created)
	run.Latency = time.Duration(latency)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, feature_id, datetime, preview,
			mean_ndvi, mean_ndvi_smoothed, median_ndvi, median_ndvi_smoothed,
			n_valid, valid_fraction, breakdown, filter, filter_fraction, ndvi
		FROM samples WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return Run{}, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []ndvi.Sample
	for rows.Next() {
		var (
			sample                                 ndvi.Sample
			mean, meanSmoothed, median, medianSmth sql.NullFloat64
			breakdown, filter                      string
			pixels                                 []byte
		)
		if err := rows.Scan(&sample.ID, &sample.FeatureID, &sample.Datetime, &sample.Preview,
			&mean, &meanSmoothed, &median, &medianSmth,
			&sample.ValidPixels, &sample.ValidFraction, &breakdown, &filter, &sample.FilterFraction, &pixels); err != nil {
			return Run{}, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.MeanNDVI = floatPtr(mean)
		sample.MeanNDVISmoothed = floatPtr(meanSmoothed)
		sample.MedianNDVI = floatPtr(median)
		sample.MedianNDVISmoothed = floatPtr(medianSmth)
		sample.Filter = ndvi.FilterKind(filter)
		if sample.Rejection, err = decodeBreakdown([]byte(breakdown)); err != nil {
			return Run{}, err
		}
		if sample.NDVI, err = decodeNDVI(pixels); err != nil {
			return Run{}, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("error iterating samples: %w", err)
	}

	splitSamples(&run, samples)
	return run, nil
}

// SaveAnnotation inserts or replaces the note of a feature
func (s *SQLiteStore) SaveAnnotation(ctx context.Context, a series.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (feature_id, datetime, note, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(feature_id) DO UPDATE SET datetime = excluded.datetime, note = excluded.note, updated_at = excluded.updated_at`,
		a.FeatureID, a.Datetime, a.Note, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	return nil
}

// Annotations returns every annotation in the order they were first written
func (s *SQLiteStore) Annotations(ctx context.Context) ([]series.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feature_id, datetime, note FROM annotations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	var out []series.Annotation
	for rows.Next() {
		var a series.Annotation
		if err := rows.Scan(&a.FeatureID, &a.Datetime, &a.Note); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CheckHealth pings the database and counts the archived runs
func (s *SQLiteStore) CheckHealth(ctx context.Context) Health {
	if err := s.db.PingContext(ctx); err != nil {
		return NewHealth(StatusUnhealthy, "Database ping failed", err)
	}
	var runs int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&runs); err != nil {
		return NewHealth(StatusUnhealthy, "Database query test failed", err)
	}
	return NewHealth(StatusHealthy, fmt.Sprintf("SQLite archive at %s holds %d run(s)", s.path, runs), nil)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var (
	_ Store         = (*SQLiteStore)(nil)
	_ Store         = (*MemoryStore)(nil)
	_ HealthChecker = (*SQLiteStore)(nil)
	_ HealthChecker = (*MemoryStore)(nil)
)
