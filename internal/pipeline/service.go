package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
)

// Service runs regions through the scene catalog and the runner, keeps the
// latest series of both contexts and archives every committed run.
type Service struct {
	catalog scene.Catalog
	runner  *Runner
	series  *SeriesStore
	archive storage.Store
	logger  *zap.SugaredLogger

	mu          sync.Mutex
	params      AnalysisParams
	annotations []series.Annotation
	generation  uint64
	cached      *cachedAnalysis
}

type cachedAnalysis struct {
	versions   [2]uint64
	generation uint64
	analysis   Analysis
}

// NewService creates a Service. A nil archive keeps runs in memory only.
func NewService(catalog scene.Catalog, runner *Runner, archive storage.Store, params AnalysisParams, logger *zap.SugaredLogger) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if archive == nil {
		archive = storage.NewMemoryStore()
	}
	return &Service{
		catalog: catalog,
		runner:  runner,
		series:  NewSeriesStore(),
		archive: archive,
		logger:  logger,
		params:  params,
	}, nil
}

// Restore loads the newest archived run of each context and every stored
// annotation. Contexts with nothing archived stay empty.
func (s *Service) Restore(ctx context.Context) error {
	for _, c := range []series.Context{series.ContextMain, series.ContextComparison} {
		run, err := s.archive.LatestRun(ctx, c)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restoring %s series: %w", c, err)
		}
		if s.series.Restore(run.ID, resultFromRun(run)) {
			s.logger.Infof("[%s] restored run %s with %d sample(s)", c, run.ID, len(run.Valid)+len(run.Rejected))
		}
	}

	annotations, err := s.archive.Annotations(ctx)
	if err != nil {
		return fmt.Errorf("restoring annotations: %w", err)
	}
	s.mu.Lock()
	s.annotations = annotations
	s.generation++
	s.mu.Unlock()
	return nil
}

// Run searches the catalog for scenes over reg and replaces the series of
// c with the result. A run started for the same context before this one
// finishes supersedes it, and Run returns ErrSuperseded.
func (s *Service) Run(ctx context.Context, c series.Context, reg region.Region, q scene.Query) (Result, error) {
	if err := reg.Validate(); err != nil {
		return Result{}, err
	}
	boundary, err := reg.Boundary()
	if err != nil {
		return Result{}, err
	}
	q.Region = boundary
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	run, err := s.series.Begin(c)
	if err != nil {
		return Result{}, err
	}

	scenes, err := s.catalog.Search(ctx, q)
	if err != nil {
		s.series.Abort(c, run)
		return Result{}, fmt.Errorf("searching scenes: %w", err)
	}
	s.logger.Infof("[%s] run %s: %d scene(s) between %s", c, run, len(scenes), q.Interval())

	res, err := s.runner.Run(ctx, c, reg, scenes)
	if err != nil {
		s.series.Abort(c, run)
		return Result{}, err
	}
	if err := s.series.Commit(c, run, res); err != nil {
		s.logger.Infof("[%s] dropping run %s: %v", c, run, err)
		return Result{}, err
	}

	err = s.archive.SaveRun(ctx, storage.Run{
		ID:        run,
		Context:   c,
		Region:    reg,
		CreatedAt: res.Finished,
		Latency:   res.Latency,
		Valid:     res.Series.Valid,
		Rejected:  res.Series.Rejected,
	})
	if err != nil {
		s.logger.Errorf("[%s] error archiving run %s: %v", c, run, err)
	}
	return res, nil
}

// Reset empties c and supersedes any run in flight for it
func (s *Service) Reset(c series.Context) error {
	if !c.Valid() {
		return fmt.Errorf("unknown context %q", c)
	}
	s.series.Reset(c)
	return nil
}

// Snapshot returns the current raw series of c
func (s *Service) Snapshot(c series.Context) *Snapshot {
	return s.series.Snapshot(c)
}

// Analysis returns the derived views of the current snapshots. The result
// is recomputed only when a snapshot, the parameters or the annotations
// changed since the last call.
func (s *Service) Analysis() Analysis {
	main := s.series.Snapshot(series.ContextMain)
	comparison := s.series.Snapshot(series.ContextComparison)
	versions := [2]uint64{main.Version, comparison.Version}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cached.versions == versions && s.cached.generation == s.generation {
		return s.cached.analysis
	}
	a := Analyze(main, comparison, s.annotations, s.params)
	s.cached = &cachedAnalysis{versions: versions, generation: s.generation, analysis: a}
	return a
}

// Params returns the analysis parameters in force
func (s *Service) Params() AnalysisParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces the analysis parameters
func (s *Service) SetParams(p AnalysisParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	s.generation++
	return nil
}

// Annotate stores a note for one sample, replacing any earlier note of the
// same feature
func (s *Service) Annotate(ctx context.Context, a series.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.archive.SaveAnnotation(ctx, a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations = series.UpsertAnnotation(s.annotations, a)
	s.generation++
	return nil
}

// Annotations returns every note in insertion order
func (s *Service) Annotations() []series.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.annotations)
}

// Close closes the archive
func (s *Service) Close() error {
	return s.archive.Close()
}

func resultFromRun(run storage.Run) Result {
	return Result{
		Context:  run.Context,
		Region:   run.Region,
		Series:   series.Collection{Valid: run.Valid, Rejected: run.Rejected},
		Latency:  run.Latency,
		Finished: run.CreatedAt,
	}
}
