package restserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chrissnell/remotendvi/internal/export"
	"github.com/chrissnell/remotendvi/internal/log"
	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
	"github.com/chrissnell/remotendvi/pkg/responseformat"
)

const maxBodyBytes = 1 << 20

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(ctrl.serverConfig.EnableCORS),
	}
}

// contextFromRequest reads the {context} path variable
func (h *Handlers) contextFromRequest(w http.ResponseWriter, req *http.Request) (series.Context, bool) {
	c := series.Context(mux.Vars(req)["context"])
	if !c.Valid() {
		h.formatter.WriteError(w, req, http.StatusNotFound, fmt.Errorf("unknown series context %q", c))
		return "", false
	}
	return c, true
}

func (h *Handlers) decode(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, region.ErrInvalidRegion),
		errors.Is(err, scene.ErrInvalidQuery),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, series.ErrInvalidAnnotation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, scene.ErrCatalogRequest):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetSeries returns the raw valid and rejected samples of one context
func (h *Handlers) GetSeries(w http.ResponseWriter, req *http.Request) {
	c, ok := h.contextFromRequest(w, req)
	if !ok {
		return
	}

	snap := h.controller.service.Snapshot(c)
	coll := snap.Collection()
	resp := SeriesResponse{
		Context:  c,
		Valid:    coll.Valid,
		Rejected: coll.Rejected,
		Failed:   []pipeline.SceneFailure{},
	}
	if snap != nil {
		resp.Version = snap.Version
		resp.Running = snap.Running
		if snap.RunID != uuid.Nil {
			id := snap.RunID
			resp.RunID = &id
		}
		if !snap.Result.Finished.IsZero() {
			reg := snap.Result.Region
			resp.Region = &reg
		}
		if snap.Result.Failed != nil {
			resp.Failed = snap.Result.Failed
		}
	}
	if resp.Valid == nil {
		resp.Valid = []ndvi.Sample{}
	}
	if resp.Rejected == nil {
		resp.Rejected = []ndvi.Sample{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, resp)
}

// ResetSeries empties one context
func (h *Handlers) ResetSeries(w http.ResponseWriter, req *http.Request) {
	c, ok := h.contextFromRequest(w, req)
	if !ok {
		return
	}
	if err := h.controller.service.Reset(c); err != nil {
		h.formatter.WriteError(w, req, statusFor(err), err)
		return
	}
	h.controller.logger.Infof("[%s] series reset", c)
	w.WriteHeader(http.StatusNoContent)
}

// StartRun searches and processes the scenes of a region and replaces the
// series of the context. The request stays open until the run commits.
func (h *Handlers) StartRun(w http.ResponseWriter, req *http.Request) {
	c, ok := h.contextFromRequest(w, req)
	if !ok {
		return
	}

	var body RunRequest
	if !h.decode(w, req, &body) {
		return
	}

	q, err := body.search(h.controller.search).Query(h.controller.now())
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err)
		return
	}

	res, err := h.controller.service.Run(req.Context(), c, body.Region, q)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.controller.logger.Errorf("[%s] run failed: %v", c, err)
		}
		h.formatter.WriteError(w, req, status, err)
		return
	}

	failed := res.Failed
	if failed == nil {
		failed = []pipeline.SceneFailure{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, RunResponse{
		Context:   c,
		Interval:  q.Interval(),
		Valid:     len(res.Series.Valid),
		Rejected:  len(res.Series.Rejected),
		Failed:    failed,
		LatencyMS: res.Latency.Milliseconds(),
	})
}

// GetChart returns the merged chart points, optionally restricted to the
// index range start..end inclusive
func (h *Handlers) GetChart(w http.ResponseWriter, req *http.Request) {
	start, err := optionalInt(req, "start")
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err)
		return
	}
	end, err := optionalInt(req, "end")
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err)
		return
	}

	// chart points come out of series.Merge with their gaps filled
	a := h.controller.service.Analysis()
	h.formatter.WriteResponse(w, req, http.StatusOK, ChartResponse{
		Versions: a.Versions,
		Total:    len(a.ChartPoints),
		Points:   series.Slice(a.ChartPoints, start, end),
	})
}

func optionalInt(req *http.Request, name string) (*int, error) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", name, v)
	}
	return &n, nil
}

// GetChangePoints returns the change points of both contexts
func (h *Handlers) GetChangePoints(w http.ResponseWriter, req *http.Request) {
	a := h.controller.service.Analysis()
	resp := ChangePointsResponse{Main: a.Main.ChangePoints, Comparison: a.Comparison.ChangePoints}
	if resp.Main == nil {
		resp.Main = []series.ChangePoint{}
	}
	if resp.Comparison == nil {
		resp.Comparison = []series.ChangePoint{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, resp)
}

// GetSummary returns the summary of both contexts
func (h *Handlers) GetSummary(w http.ResponseWriter, req *http.Request) {
	a := h.controller.service.Analysis()
	h.formatter.WriteResponse(w, req, http.StatusOK, SummaryResponse{
		Main:       a.Main.Summary,
		Comparison: a.Comparison.Summary,
	})
}

// GetExport downloads the delimited sample report
func (h *Handlers) GetExport(w http.ResponseWriter, req *http.Request) {
	a := h.controller.service.Analysis()
	if err := h.formatter.WriteText(w, "text/csv; charset=utf-8", export.FileName(h.controller.now()), a.Report()); err != nil {
		h.controller.logger.Errorf("error writing export: %v", err)
	}
}

// GetProvenance returns the ids and dates of every scene in both series
func (h *Handlers) GetProvenance(w http.ResponseWriter, req *http.Request) {
	a := h.controller.service.Analysis()
	if err := h.formatter.WriteText(w, "text/plain; charset=utf-8", "", a.SceneList()); err != nil {
		h.controller.logger.Errorf("error writing provenance: %v", err)
	}
}

// GetAnnotations returns every annotation in insertion order
func (h *Handlers) GetAnnotations(w http.ResponseWriter, req *http.Request) {
	list := h.controller.service.Annotations()
	if list == nil {
		list = []series.Annotation{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, list)
}

// PostAnnotation adds or replaces the note of one sample
func (h *Handlers) PostAnnotation(w http.ResponseWriter, req *http.Request) {
	var a series.Annotation
	if !h.decode(w, req, &a) {
		return
	}
	if err := h.controller.service.Annotate(req.Context(), a); err != nil {
		h.formatter.WriteError(w, req, statusFor(err), err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, a)
}

// GetAnalysis returns the analysis parameters in force
func (h *Handlers) GetAnalysis(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, AnalysisResponse{Params: h.controller.service.Params()})
}

// PutAnalysis replaces the analysis parameters. Every derived view is
// recomputed on the next read. With a writable configuration provider the
// parameters are saved as well.
func (h *Handlers) PutAnalysis(w http.ResponseWriter, req *http.Request) {
	var p pipeline.AnalysisParams
	if !h.decode(w, req, &p) {
		return
	}
	if err := h.controller.service.SetParams(p); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err)
		return
	}

	resp := AnalysisResponse{Params: p}
	if err := h.persistParams(p); err != nil {
		h.controller.logger.Errorf("error saving analysis parameters: %v", err)
	} else {
		resp.Persisted = !h.controller.configProvider.IsReadOnly()
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, resp)
}

func (h *Handlers) persistParams(p pipeline.AnalysisParams) error {
	provider := h.controller.configProvider
	if provider.IsReadOnly() {
		return nil
	}
	current, err := provider.GetAnalysis()
	if err != nil {
		return err
	}
	a := *current
	a.SmoothingWindow = p.SmoothingWindow
	a.Detector = config.DetectorData{
		Window:        p.Detector.Window,
		Threshold:     p.Detector.Threshold,
		MinSeparation: p.Detector.MinSeparation,
	}
	return provider.SaveAnalysis(a)
}

// GetHTTPLogs returns the recent requests served, oldest first
func (h *Handlers) GetHTTPLogs(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, log.GetHTTPLogBuffer().GetEntries())
}

// GetHealth reports the last archive health checks. Any unhealthy archive
// turns the status into 503.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: storage.StatusHealthy, Archives: map[string]storage.Health{}}
	if h.controller.health != nil {
		resp.Archives = h.controller.health.GetAllHealth()
	}
	status := http.StatusOK
	for _, a := range resp.Archives {
		if a.Status != storage.StatusHealthy {
			resp.Status = storage.StatusUnhealthy
			status = http.StatusServiceUnavailable
		}
	}
	h.formatter.WriteResponse(w, req, status, resp)
}
