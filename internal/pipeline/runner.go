package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
)

// SceneFailure records a scene that produced no sample at all
type SceneFailure struct {
	SceneID  string `json:"scene_id"`
	Datetime string `json:"datetime"`
	Error    string `json:"error"`
}

// Result is the outcome of one run over a scene list
type Result struct {
	Context  series.Context    `json:"context"`
	Region   region.Region     `json:"region"`
	Series   series.Collection `json:"series"`
	Failed   []SceneFailure    `json:"failed"`
	Latency  time.Duration     `json:"latency_ns"`
	Finished time.Time         `json:"finished"`
}

// sceneProcessor is the part of Processor the runner drives
type sceneProcessor interface {
	Scene(ctx context.Context, meta ndvi.SceneMeta, d scene.Descriptor, vertices []orb.Point) (ndvi.Sample, ndvi.Outcome, error)
}

// Runner processes the scenes of a run concurrently
type Runner struct {
	processor sceneProcessor
	workers   int
	logger    *zap.SugaredLogger
}

// NewRunner creates a Runner with at most workers scenes in flight. Zero
// or less means one per CPU.
func NewRunner(p *Processor, workers int, logger *zap.SugaredLogger) *Runner {
	return newRunner(p, workers, logger)
}

func newRunner(p sceneProcessor, workers int, logger *zap.SugaredLogger) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{processor: p, workers: workers, logger: logger}
}

type sceneResult struct {
	sample  ndvi.Sample
	outcome ndvi.Outcome
	err     error
}

// Run processes every scene covering reg. Scenes are ordered by datetime,
// input order breaking ties, and sample ids follow that order no matter
// when each scene finishes. Rejected and failed scenes never stop the
// others; only an invalid region or a cancelled context fails the run.
func (r *Runner) Run(ctx context.Context, c series.Context, reg region.Region, scenes []scene.Descriptor) (Result, error) {
	started := time.Now()

	boundary, err := reg.Boundary()
	if err != nil {
		return Result{}, err
	}
	vertices := []orb.Point(region.Open(boundary))

	ordered := slices.Clone(scenes)
	scene.SortByDatetime(ordered)

	results := make([]sceneResult, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, d := range ordered {
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta := ndvi.SceneMeta{FeatureID: d.ID, Datetime: d.Datetime, Preview: d.Assets.Preview}
			sample, outcome, err := r.processor.Scene(gctx, meta, d, vertices)
			results[i] = sceneResult{sample: sample, outcome: outcome, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Context: c, Region: reg}
	id := 0
	for i, sr := range results {
		d := ordered[i]
		if sr.err != nil {
			r.logger.Warnf("[%s] scene %s failed: %v", c, d.ID, sr.err)
			res.Failed = append(res.Failed, SceneFailure{SceneID: d.ID, Datetime: d.Datetime, Error: sr.err.Error()})
			continue
		}
		id++
		sr.sample.ID = id
		switch o := sr.outcome.(type) {
		case ndvi.Rejected:
			r.logger.Debugf("[%s] scene %s not valid: %v", c, d.ID, o.Err())
			res.Series.Rejected = append(res.Series.Rejected, sr.sample)
		case ndvi.Accepted:
			if sr.sample.MeanNDVI == nil {
				r.logger.Debugf("[%s] scene %s not valid: no mean NDVI", c, d.ID)
				res.Series.Rejected = append(res.Series.Rejected, sr.sample)
				continue
			}
			res.Series.Valid = append(res.Series.Valid, sr.sample)
		default:
			return Result{}, fmt.Errorf("scene %s: unexpected outcome %T", d.ID, o)
		}
	}

	res.Finished = time.Now()
	res.Latency = res.Finished.Sub(started)
	r.logger.Infof("[%s] processed %d scene(s): %d valid, %d not valid, %d failed in %v",
		c, len(ordered), len(res.Series.Valid), len(res.Series.Rejected), len(res.Failed), res.Latency)
	return res, nil
}
