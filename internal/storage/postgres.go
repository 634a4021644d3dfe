package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/series"
)

// RunRecord is a run row of the Postgres archive
type RunRecord struct {
	ID        string       `gorm:"primaryKey;column:id"`
	Context   string       `gorm:"column:context;not null;index:idx_runs_context_created"`
	Region    pgtype.JSONB `gorm:"column:region;type:jsonb;not null"`
	CreatedAt time.Time    `gorm:"column:created_at;not null;index:idx_runs_context_created"`
	LatencyNS int64        `gorm:"column:latency_ns;not null"`
}

func (RunRecord) TableName() string {
	return "ndvi_runs"
}

// SampleRecord is a sample row of the Postgres archive. NDVI pixels are
// stored as a double precision array with NaN at masked pixels.
type SampleRecord struct {
	RunID              string          `gorm:"primaryKey;column:run_id"`
	ID                 int             `gorm:"primaryKey;column:id;autoIncrement:false"`
	FeatureID          string          `gorm:"column:feature_id;not null"`
	Datetime           string          `gorm:"column:datetime;not null"`
	Preview            string          `gorm:"column:preview"`
	MeanNDVI           *float64        `gorm:"column:mean_ndvi"`
	MeanNDVISmoothed   *float64        `gorm:"column:mean_ndvi_smoothed"`
	MedianNDVI         *float64        `gorm:"column:median_ndvi"`
	MedianNDVISmoothed *float64        `gorm:"column:median_ndvi_smoothed"`
	ValidPixels        int             `gorm:"column:n_valid;not null"`
	ValidFraction      float64         `gorm:"column:valid_fraction;not null"`
	Breakdown          pgtype.JSONB    `gorm:"column:breakdown;type:jsonb;default:'{}';not null"`
	Filter             string          `gorm:"column:filter;not null"`
	FilterFraction     float64         `gorm:"column:filter_fraction;not null"`
	NDVI               pq.Float64Array `gorm:"column:ndvi;type:double precision[]"`
}

func (SampleRecord) TableName() string {
	return "ndvi_samples"
}

// AnnotationRecord is an annotation row of the Postgres archive
type AnnotationRecord struct {
	FeatureID string    `gorm:"primaryKey;column:feature_id"`
	Datetime  string    `gorm:"column:datetime;not null"`
	Note      string    `gorm:"column:note;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AnnotationRecord) TableName() string {
	return "ndvi_annotations"
}

// PostgresStore archives runs in PostgreSQL or TimescaleDB through gorm
type PostgresStore struct {
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// OpenPostgres connects to dsn and migrates the archive tables
func OpenPostgres(ctx context.Context, dsn string, zl *zap.SugaredLogger) (*PostgresStore, error) {
	dbLogger := logger.New(
		zap.NewStdLog(zl.Desugar()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	zl.Info("connecting to PostgreSQL...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL: %w", err)
	}
	return newPostgresStore(ctx, db, zl)
}

func newPostgresStore(ctx context.Context, db *gorm.DB, zl *zap.SugaredLogger) (*PostgresStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&RunRecord{}, &SampleRecord{}, &AnnotationRecord{}); err != nil {
		return nil, fmt.Errorf("error migrating archive tables: %w", err)
	}
	zl.Info("PostgreSQL run archive ready")
	return &PostgresStore{DB: db, logger: zl}, nil
}

// SaveRun stores the run and its samples in one transaction
func (p *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	rec := RunRecord{
		ID:        run.ID.String(),
		Context:   string(run.Context),
		CreatedAt: run.CreatedAt,
		LatencyNS: int64(run.Latency),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := rec.Region.Set(run.Region); err != nil {
		return fmt.Errorf("encoding region: %w", err)
	}

	samples := series.AllSamples(run.Valid, run.Rejected)
	records := make([]SampleRecord, 0, len(samples))
	for _, s := range samples {
		r, err := toSampleRecord(rec.ID, s)
		if err != nil {
			return err
		}
		records = append(records, r)
	}

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to insert samples: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.logger.Debugf("archived %s run %s with %d sample(s)", run.Context, run.ID, len(records))
	return nil
}

// LatestRun loads the most recent run of c
func (p *PostgresStore) LatestRun(ctx context.Context, c series.Context) (Run, error) {
	var rec RunRecord
	err := p.DB.WithContext(ctx).Where("context = ?", string(c)).Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("error querying latest run: %w", err)
	}

	run := Run{Context: c, CreatedAt: rec.CreatedAt, Latency: time.Duration(rec.LatencyNS)}
	if run.ID, err = uuid.Parse(rec.ID); err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", rec.ID, err)
	}
	if err := rec.Region.AssignTo(&run.Region); err != nil {
		return Run{}, fmt.Errorf("decoding region: %w", err)
	}

	var records []SampleRecord
	if err := p.DB.WithContext(ctx).Where("run_id = ?", rec.ID).Order("id").Find(&records).Error; err != nil {
		return Run{}, fmt.Errorf("error querying samples: %w", err)
	}
	samples := make([]ndvi.Sample, 0, len(records))
	for _, r := range records {
		s, err := r.sample()
		if err != nil {
			return Run{}, err
		}
		samples = append(samples, s)
	}
	splitSamples(&run, samples)
	return run, nil
}

// SaveAnnotation inserts or replaces the note of a feature
func (p *PostgresStore) SaveAnnotation(ctx context.Context, a series.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	rec := AnnotationRecord{FeatureID: a.FeatureID, Datetime: a.Datetime, Note: a.Note}
	err := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"datetime", "note", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	return nil
}

// Annotations returns every annotation in creation order
func (p *PostgresStore) Annotations(ctx context.Context) ([]series.Annotation, error) {
	var recs []AnnotationRecord
	if err := p.DB.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("error querying annotations: %w", err)
	}
	out := make([]series.Annotation, len(recs))
	for i, r := range recs {
		out[i] = series.Annotation{FeatureID: r.FeatureID, Datetime: r.Datetime, Note: r.Note}
	}
	return out, nil
}

// CheckHealth pings the connection pool and runs a trivial query
func (p *PostgresStore) CheckHealth(ctx context.Context) Health {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return NewHealth(StatusUnhealthy, "Failed to get underlying database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return NewHealth(StatusUnhealthy, "Database ping failed", err)
	}
	var result int
	if err := p.DB.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return NewHealth(StatusUnhealthy, "Database query test failed", err)
	}
	return NewHealth(StatusHealthy, "PostgreSQL archive operational - ping: OK, query test: OK", nil)
}

// Close closes the underlying connection pool
func (p *PostgresStore) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toSampleRecord(runID string, s ndvi.Sample) (SampleRecord, error) {
	r := SampleRecord{
		RunID:              runID,
		ID:                 s.ID,
		FeatureID:          s.FeatureID,
		Datetime:           s.Datetime,
		Preview:            s.Preview,
		MeanNDVI:           s.MeanNDVI,
		MeanNDVISmoothed:   s.MeanNDVISmoothed,
		MedianNDVI:         s.MedianNDVI,
		MedianNDVISmoothed: s.MedianNDVISmoothed,
		ValidPixels:        s.ValidPixels,
		ValidFraction:      s.ValidFraction,
		Filter:             string(s.Filter),
		FilterFraction:     s.FilterFraction,
	}
	breakdown, err := encodeBreakdown(s.Rejection)
	if err != nil {
		return r, err
	}
	if err := r.Breakdown.Set(breakdown); err != nil {
		return r, fmt.Errorf("encoding rejection breakdown: %w", err)
	}
	if s.NDVI != nil {
		r.NDVI = make(pq.Float64Array, len(s.NDVI))
		for i, v := range s.NDVI {
			r.NDVI[i] = float64(v)
		}
	}
	return r, nil
}

func (r SampleRecord) sample() (ndvi.Sample, error) {
	s := ndvi.Sample{
		FeatureID:          r.FeatureID,
		ID:                 r.ID,
		Datetime:           r.Datetime,
		Preview:            r.Preview,
		MeanNDVI:           r.MeanNDVI,
		MeanNDVISmoothed:   r.MeanNDVISmoothed,
		MedianNDVI:         r.MedianNDVI,
		MedianNDVISmoothed: r.MedianNDVISmoothed,
		ValidPixels:        r.ValidPixels,
		ValidFraction:      r.ValidFraction,
		Filter:             ndvi.FilterKind(r.Filter),
		FilterFraction:     r.FilterFraction,
	}
	var err error
	if s.Rejection, err = decodeBreakdown(r.Breakdown.Bytes); err != nil {
		return s, err
	}
	if r.NDVI != nil {
		s.NDVI = make([]float32, len(r.NDVI))
		for i, v := range r.NDVI {
			s.NDVI[i] = float32(v)
		}
	}
	return s, nil
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ HealthChecker = (*PostgresStore)(nil)
)
