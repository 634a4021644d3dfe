// Package storage archives completed NDVI runs and user annotations so the
// series survive restarts and can be exported later.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/series"
)

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

var (
	// ErrNotFound is returned when no run has been archived for a context
	ErrNotFound = errors.New("not found")
	// ErrUnknownBackend is returned by Open for unrecognized backend names
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Run is one completed run of a context
type Run struct {
	ID        uuid.UUID      `json:"id"`
	Context   series.Context `json:"context"`
	Region    region.Region  `json:"region"`
	CreatedAt time.Time      `json:"created_at"`
	Latency   time.Duration  `json:"latency_ns"`
	Valid     []ndvi.Sample  `json:"valid"`
	Rejected  []ndvi.Sample  `json:"rejected"`
}

// Store archives runs and annotations
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	LatestRun(ctx context.Context, c series.Context) (Run, error)
	SaveAnnotation(ctx context.Context, a series.Annotation) error
	Annotations(ctx context.Context) ([]series.Annotation, error)
	Close() error
}

// Config selects and locates the archive backend
type Config struct {
	Backend     string
	SQLitePath  string
	PostgresDSN string
}

// Open connects the configured backend. The none backend keeps everything
// in memory for the life of the process.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case BackendNone:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// encodeNDVI packs a pixel buffer. NaN survives the round trip.
func encodeNDVI(values []float32) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return msgpack.Marshal(values)
}

func decodeNDVI(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []float32
	if err := msgpack.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding ndvi pixels: %w", err)
	}
	return values, nil
}

func encodeBreakdown(b ndvi.RejectionBreakdown) ([]byte, error) {
	if b == nil {
		b = ndvi.RejectionBreakdown{}
	}
	return json.Marshal(b)
}

func decodeBreakdown(data []byte) (ndvi.RejectionBreakdown, error) {
	b := ndvi.RejectionBreakdown{}
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding rejection breakdown: %w", err)
	}
	return b, nil
}

// splitSamples files decoded samples back into the valid or rejected half
func splitSamples(run *Run, samples []ndvi.Sample) {
	for _, s := range samples {
		if s.Valid() {
			run.Valid = append(run.Valid, s)
		} else {
			run.Rejected = append(run.Rejected, s)
		}
	}
}
