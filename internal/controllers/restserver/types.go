package restserver

import (
	"github.com/google/uuid"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
)

// RunRequest starts a run over one region. Search fields left out take
// the configured defaults.
type RunRequest struct {
	Region     region.Region `json:"region"`
	Start      string        `json:"start,omitempty"`
	End        string        `json:"end,omitempty"`
	Temporal   string        `json:"temporal,omitempty"`
	Spatial    string        `json:"spatial,omitempty"`
	CloudCover *float64      `json:"cloud_cover,omitempty"`
	SnowCover  *float64      `json:"snow_cover,omitempty"`
	Limit      *int          `json:"limit,omitempty"`
}

// search overlays the request on the configured search
func (r RunRequest) search(defaults config.SearchData) config.SearchData {
	s := defaults
	if r.Start != "" {
		s.Start = r.Start
	}
	if r.End != "" {
		s.End = r.End
	}
	if r.Temporal != "" {
		s.Temporal = r.Temporal
	}
	if r.Spatial != "" {
		s.Spatial = r.Spatial
	}
	if r.CloudCover != nil {
		s.CloudCover = *r.CloudCover
	}
	if r.SnowCover != nil {
		s.SnowCover = *r.SnowCover
	}
	if r.Limit != nil {
		s.Limit = *r.Limit
	}
	return s
}

// RunResponse summarizes a committed run
type RunResponse struct {
	Context   series.Context          `json:"context"`
	Interval  string                  `json:"interval"`
	Valid     int                     `json:"valid"`
	Rejected  int                     `json:"rejected"`
	Failed    []pipeline.SceneFailure `json:"failed"`
	LatencyMS int64                   `json:"latency_ms"`
}

// SeriesResponse is the raw series of one context
type SeriesResponse struct {
	Context  series.Context          `json:"context"`
	Version  uint64                  `json:"version"`
	RunID    *uuid.UUID              `json:"run_id,omitempty"`
	Running  bool                    `json:"running"`
	Region   *region.Region          `json:"region,omitempty"`
	Valid    []ndvi.Sample           `json:"valid"`
	Rejected []ndvi.Sample           `json:"rejected"`
	Failed   []pipeline.SceneFailure `json:"failed"`
}

// ChartResponse carries the merged chart points of both contexts
type ChartResponse struct {
	Versions [2]uint64           `json:"versions"`
	Total    int                 `json:"total"`
	Points   []series.ChartPoint `json:"points"`
}

// ChangePointsResponse lists the change points of both contexts
type ChangePointsResponse struct {
	Main       []series.ChangePoint `json:"main"`
	Comparison []series.ChangePoint `json:"comparison"`
}

// SummaryResponse holds the summary of both contexts
type SummaryResponse struct {
	Main       series.Summary `json:"main"`
	Comparison series.Summary `json:"comparison"`
}

// AnalysisResponse reports the parameters in force and whether a change
// was saved to the configuration
type AnalysisResponse struct {
	Params    pipeline.AnalysisParams `json:"params"`
	Persisted bool                    `json:"persisted"`
}

// HealthResponse carries the overall status and each archive's last check
type HealthResponse struct {
	Status   string                    `json:"status"`
	Archives map[string]storage.Health `json:"archives"`
}
