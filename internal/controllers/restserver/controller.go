package restserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/log"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/scene"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
	"github.com/chrissnell/remotendvi/pkg/responseformat"
)

// Service is the part of the pipeline the REST server drives
type Service interface {
	Run(ctx context.Context, c series.Context, reg region.Region, q scene.Query) (pipeline.Result, error)
	Reset(c series.Context) error
	Snapshot(c series.Context) *pipeline.Snapshot
	Analysis() pipeline.Analysis
	Params() pipeline.AnalysisParams
	SetParams(p pipeline.AnalysisParams) error
	Annotate(ctx context.Context, a series.Annotation) error
	Annotations() []series.Annotation
}

// Controller represents the REST server controller
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	serverConfig   config.ServerData
	search         config.SearchData
	service        Service
	health         *storage.HealthManager
	Server         http.Server
	logger         *zap.SugaredLogger
	handlers       *Handlers
	now            func() time.Time
}

// NewController creates a new REST server controller. The provider supplies
// the server settings and the default search, and receives analysis
// parameters changed through the API unless it is read-only.
func NewController(ctx context.Context, wg *sync.WaitGroup, service Service, health *storage.HealthManager, configProvider config.ConfigProvider, logger *zap.SugaredLogger) (*Controller, error) {
	cfgData, err := configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		serverConfig:   cfgData.Server,
		search:         cfgData.Catalog.Search,
		service:        service,
		health:         health,
		logger:         logger,
		now:            time.Now,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if ctrl.serverConfig.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.serverConfig.ListenAddr = "0.0.0.0"
	}
	if ctrl.serverConfig.Port == 0 {
		ctrl.serverConfig.Port = config.DefaultPort
	}

	ctrl.handlers = NewHandlers(ctrl)
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.serverConfig.ListenAddr, ctrl.serverConfig.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController starts the REST server and shuts it down when the
// controller's context ends
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints. CORS wraps the
// router so preflight requests never reach route matching.
func (c *Controller) setupRouter() http.Handler {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/series/{context}", c.handlers.GetSeries).Methods(http.MethodGet)
	api.HandleFunc("/series/{context}", c.handlers.ResetSeries).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{context}", c.handlers.StartRun).Methods(http.MethodPost)
	api.HandleFunc("/chart", c.handlers.GetChart).Methods(http.MethodGet)
	api.HandleFunc("/changepoints", c.handlers.GetChangePoints).Methods(http.MethodGet)
	api.HandleFunc("/summary", c.handlers.GetSummary).Methods(http.MethodGet)
	api.HandleFunc("/export", c.handlers.GetExport).Methods(http.MethodGet)
	api.HandleFunc("/provenance", c.handlers.GetProvenance).Methods(http.MethodGet)
	api.HandleFunc("/annotations", c.handlers.GetAnnotations).Methods(http.MethodGet)
	api.HandleFunc("/annotations", c.handlers.PostAnnotation).Methods(http.MethodPost)
	api.HandleFunc("/analysis", c.handlers.GetAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/analysis", c.handlers.PutAnalysis).Methods(http.MethodPut)
	api.HandleFunc("/logs/http", c.handlers.GetHTTPLogs).Methods(http.MethodGet)
	api.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)

	if c.serverConfig.EnableCORS {
		return corsHandler(router)
	}
	return router
}

// statusRecorder remembers the status and size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// loggingMiddleware records every request in the HTTP log buffer except
// reads of the buffer itself
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if strings.HasPrefix(r.URL.Path, "/api/logs") {
			return
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)
		log.LogHTTPRequest(log.HTTPRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			Duration:   elapsed,
			Size:       rec.size,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			Format:     responseformat.Format(r),
		})
		c.logger.Debugf("%s %s %s %d %v", r.Method, r.RequestURI, r.RemoteAddr, rec.status, elapsed)
	})
}

// corsHandler allows any origin and answers preflight requests for the API
// methods
func corsHandler(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(next)
}
