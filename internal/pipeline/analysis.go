package pipeline

import (
	"fmt"
	"time"

	"github.com/chrissnell/remotendvi/internal/export"
	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/series"
)

// AnalysisParams are the series-level parameters. Changing any of them
// recomputes every derived view.
type AnalysisParams struct {
	SmoothingWindow int                   `json:"smoothing_window" yaml:"smoothing_window"`
	Detector        series.DetectorParams `json:"detector" yaml:"detector"`
}

// DefaultAnalysisParams returns smoothing off and the default detector
func DefaultAnalysisParams() AnalysisParams {
	return AnalysisParams{SmoothingWindow: 1, Detector: series.DefaultDetectorParams()}
}

// Validate rejects windows below one and non-positive detector settings
func (p AnalysisParams) Validate() error {
	if p.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing window must be at least 1, got %d", p.SmoothingWindow)
	}
	if p.Detector.Window < 1 {
		return fmt.Errorf("detector window must be at least 1, got %d", p.Detector.Window)
	}
	if p.Detector.Threshold <= 0 {
		return fmt.Errorf("detector threshold must be positive, got %g", p.Detector.Threshold)
	}
	if p.Detector.MinSeparation < 0 {
		return fmt.Errorf("detector min separation must not be negative, got %d", p.Detector.MinSeparation)
	}
	return nil
}

// SeriesView is one context after smoothing and change detection
type SeriesView struct {
	Context      series.Context       `json:"context"`
	Valid        []ndvi.Sample        `json:"valid"`
	Rejected     []ndvi.Sample        `json:"rejected"`
	ChangePoints []series.ChangePoint `json:"change_points"`
	Summary      series.Summary       `json:"summary"`
	Failed       []SceneFailure       `json:"failed,omitempty"`
}

// All returns valid and rejected samples in id order
func (v SeriesView) All() []ndvi.Sample { return series.AllSamples(v.Valid, v.Rejected) }

// Analysis is every derived view of a snapshot pair
type Analysis struct {
	Params      AnalysisParams      `json:"params"`
	Versions    [2]uint64           `json:"versions"`
	Main        SeriesView          `json:"main"`
	Comparison  SeriesView          `json:"comparison"`
	ChartPoints []series.ChartPoint `json:"chart_points"`
	Annotations []series.Annotation `json:"annotations"`
}

// Analyze recomputes smoothing, change points and chart points in full.
// It reads the snapshots and never modifies them.
func Analyze(main, comparison *Snapshot, annotations []series.Annotation, params AnalysisParams) Analysis {
	a := Analysis{
		Params:      params,
		Main:        view(series.ContextMain, main, params),
		Comparison:  view(series.ContextComparison, comparison, params),
		Annotations: annotations,
	}
	if main != nil {
		a.Versions[0] = main.Version
	}
	if comparison != nil {
		a.Versions[1] = comparison.Version
	}
	a.ChartPoints = series.Merge(
		series.Collection{Valid: a.Main.Valid, Rejected: a.Main.Rejected},
		series.Collection{Valid: a.Comparison.Valid, Rejected: a.Comparison.Rejected},
		annotations,
	)
	return a
}

// View returns the view of c
func (a Analysis) View(c series.Context) SeriesView {
	if c == series.ContextComparison {
		return a.Comparison
	}
	return a.Main
}

// Report renders both views as the delimited sample report
func (a Analysis) Report() string {
	return export.Report(a.section(a.Main, export.MainTitle), a.section(a.Comparison, export.ComparisonTitle))
}

// SceneList renders the scene ids and dates of both views
func (a Analysis) SceneList() string {
	return export.SceneList(a.Main.All(), a.Comparison.All())
}

func (a Analysis) section(v SeriesView, title string) export.Section {
	return export.Section{
		Title:        title,
		Samples:      v.All(),
		ChangePoints: v.ChangePoints,
		Annotations:  a.Annotations,
	}
}

func view(c series.Context, snap *Snapshot, params AnalysisParams) SeriesView {
	coll := snap.Collection()
	v := SeriesView{
		Context:  c,
		Valid:    series.Smooth(coll.Valid, params.SmoothingWindow),
		Rejected: coll.Rejected,
	}
	if params.Detector.Enabled() {
		v.ChangePoints = series.DetectChangePoints(v.Valid, params.Detector)
	}
	var latency time.Duration
	if snap != nil {
		latency = snap.Result.Latency
		v.Failed = snap.Result.Failed
	}
	v.Summary = series.Summarize(c, v.All(), latency)
	return v
}
