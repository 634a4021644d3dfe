package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/controllers/restserver"
	"github.com/chrissnell/remotendvi/internal/log"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// healthInterval is how often the run archive is checked
const healthInterval = time.Minute

// NewService builds the pipeline service from the configuration: catalog,
// decoder and runner, archiving into archive
func NewService(cfg *config.ConfigData, archive storage.Store, logger *zap.SugaredLogger) (*pipeline.Service, error) {
	catalog, err := NewCatalog(cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(cfg.Catalog.Fetch)
	if err != nil {
		return nil, err
	}
	settings, err := ProcessorSettings(cfg.Analysis)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(pipeline.NewProcessor(decoder, settings, logger), cfg.Analysis.Workers, logger)
	return pipeline.NewService(catalog, runner, archive, AnalysisParams(cfg.Analysis), logger)
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	regions, err := StartupRegions(cfg.Regions, a.logger)
	if err != nil {
		return err
	}

	archive, err := storage.Open(ctx, StorageConfig(cfg.Storage), a.logger)
	if err != nil {
		return fmt.Errorf("opening %s run archive: %w", cfg.Storage.Backend, err)
	}
	svc, err := NewService(cfg, archive, a.logger)
	if err != nil {
		archive.Close()
		return err
	}
	defer svc.Close()

	health := storage.NewHealthManager()
	if checker, ok := archive.(storage.HealthChecker); ok {
		storage.StartHealthMonitor(ctx, &wg, health, cfg.Storage.Backend, checker, healthInterval, a.logger)
	}

	if err := svc.Restore(ctx); err != nil {
		return err
	}

	ctrl, err := restserver.NewController(ctx, &wg, svc, health, a.configProvider, a.logger)
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	if len(regions) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runStartupRegions(ctx, svc, cfg.Catalog.Search, regions)
		}()
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// runStartupRegions runs the configured regions one after another. Main and
// comparison regions go through the same service, so a later region for a
// context supersedes an earlier one.
func (a *App) runStartupRegions(ctx context.Context, svc *pipeline.Service, search config.SearchData, regions []StartupRegion) {
	q, err := search.Query(time.Now())
	if err != nil {
		a.logger.Errorf("startup search: %v", err)
		return
	}
	for _, r := range regions {
		res, err := svc.Run(ctx, r.Context, r.Region, q)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			a.logger.Errorf("[%s] startup run for region %s failed: %v", r.Context, r.Region.ID, err)
		default:
			a.logger.Infof("[%s] region %s: %d valid, %d rejected, %d failed in %v",
				r.Context, r.Region.ID, len(res.Series.Valid), len(res.Series.Rejected), len(res.Failed), res.Latency)
		}
	}
}
