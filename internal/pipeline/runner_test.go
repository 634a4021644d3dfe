package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
)

// fakeProcessor answers per scene id without touching any raster
type fakeProcessor struct {
	delay  map[string]time.Duration
	fail   map[string]bool
	reject map[string]bool
	empty  map[string]bool
}

func (f *fakeProcessor) Scene(ctx context.Context, meta ndvi.SceneMeta, d scene.Descriptor, vertices []orb.Point) (ndvi.Sample, ndvi.Outcome, error) {
	if len(vertices) < 3 {
		return ndvi.Sample{}, nil, errors.New("no vertices")
	}
	select {
	case <-time.After(f.delay[d.ID]):
	case <-ctx.Done():
		return ndvi.Sample{}, nil, ctx.Err()
	}
	if f.fail[d.ID] {
		return ndvi.Sample{}, nil, errors.New("asset unreachable")
	}
	s := ndvi.Sample{FeatureID: meta.FeatureID, Datetime: meta.Datetime, Preview: meta.Preview, ValidFraction: 100}
	if f.reject[d.ID] {
		s.ValidFraction = 10
		return s, ndvi.Rejected{Diag: ndvi.Diagnostics{ValidFraction: 10}, Threshold: 80}, nil
	}
	if !f.empty[d.ID] {
		s.MeanNDVI = ndvi.Float(0.5)
	}
	return s, ndvi.Accepted{}, nil
}

var testRegion = region.Region{ID: "field", Kind: region.KindCircle, Center: orb.Point{9.19, 45.46}, RadiusMeters: 30}

func descriptors() []scene.Descriptor {
	// deliberately out of chronological order
	return []scene.Descriptor{
		{ID: "d", Datetime: "2025-01-04T10:00:00Z"},
		{ID: "b", Datetime: "2025-01-02T10:00:00Z"},
		{ID: "a", Datetime: "2025-01-01T10:00:00Z", Assets: scene.Assets{Preview: "a.png"}},
		{ID: "c", Datetime: "2025-01-03T10:00:00Z"},
	}
}

func ids(samples []ndvi.Sample) map[string]int {
	out := make(map[string]int, len(samples))
	for _, s := range samples {
		out[s.FeatureID] = s.ID
	}
	return out
}

func TestRunAssignsIdsInChronologicalOrder(t *testing.T) {
	p := &fakeProcessor{
		// the earliest scene finishes last
		delay:  map[string]time.Duration{"a": 30 * time.Millisecond},
		fail:   map[string]bool{"b": true},
		reject: map[string]bool{"c": true},
	}
	r := newRunner(p, 4, zap.NewNop().Sugar())

	res, err := r.Run(context.Background(), series.ContextMain, testRegion, descriptors())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "d": 3}, ids(res.Series.Valid))
	assert.Equal(t, map[string]int{"c": 2}, ids(res.Series.Rejected))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b", res.Failed[0].SceneID)
	assert.Equal(t, "asset unreachable", res.Failed[0].Error)

	assert.Equal(t, series.ContextMain, res.Context)
	assert.Equal(t, "a.png", res.Series.Valid[0].Preview)
	assert.False(t, res.Finished.IsZero())
	assert.Positive(t, res.Latency)
}

func TestRunDoesNotReorderInput(t *testing.T) {
	in := descriptors()
	r := newRunner(&fakeProcessor{}, 2, zap.NewNop().Sugar())
	_, err := r.Run(context.Background(), series.ContextComparison, testRegion, in)
	require.NoError(t, err)
	assert.Equal(t, "d", in[0].ID)
}

func TestRunSameDatetimeKeepsInputOrder(t *testing.T) {
	scenes := []scene.Descriptor{
		{ID: "tile-2", Datetime: "2025-02-01T10:00:00Z"},
		{ID: "tile-1", Datetime: "2025-02-01T10:00:00Z"},
	}
	p := &fakeProcessor{delay: map[string]time.Duration{"tile-2": 20 * time.Millisecond}}
	res, err := newRunner(p, 2, zap.NewNop().Sugar()).Run(context.Background(), series.ContextMain, testRegion, scenes)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"tile-2": 1, "tile-1": 2}, ids(res.Series.Valid))
}

func TestRunInvalidRegion(t *testing.T) {
	r := newRunner(&fakeProcessor{}, 1, zap.NewNop().Sugar())
	_, err := r.Run(context.Background(), series.ContextMain, region.Region{Kind: region.KindPolygon}, descriptors())
	assert.ErrorIs(t, err, region.ErrInvalidRegion)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(&fakeProcessor{}, 1, zap.NewNop().Sugar())
	_, err := r.Run(ctx, series.ContextMain, testRegion, descriptors())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNoScenes(t *testing.T) {
	r := newRunner(&fakeProcessor{}, 1, zap.NewNop().Sugar())
	res, err := r.Run(context.Background(), series.ContextMain, testRegion, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Series.Len())
	assert.Empty(t, res.Failed)
}

func TestRunFilesMeanlessSamplesAsRejected(t *testing.T) {
	p := &fakeProcessor{empty: map[string]bool{"b": true}}
	res, err := newRunner(p, 2, zap.NewNop().Sugar()).Run(context.Background(), series.ContextMain, testRegion, descriptors())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "c": 3, "d": 4}, ids(res.Series.Valid))
	assert.Equal(t, map[string]int{"b": 2}, ids(res.Series.Rejected))
	for _, s := range res.Series.Valid {
		assert.NotNil(t, s.MeanNDVI, s.FeatureID)
	}
}

func TestRunRejectsTwoVertexPolygonBeforeWindowing(t *testing.T) {
	reg := region.Region{ID: "line", Kind: region.KindPolygon, Vertices: orb.Ring{{9, 45}, {9.01, 45}}}
	_, err := newRunner(&fakeProcessor{}, 1, zap.NewNop().Sugar()).Run(context.Background(), series.ContextMain, reg, descriptors())
	assert.ErrorIs(t, err, region.ErrInvalidRegion)
}
