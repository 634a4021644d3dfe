// Command ndvi-report writes the sample report of the latest archived runs
// without starting the service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/app"
	"github.com/chrissnell/remotendvi/internal/export"
	"github.com/chrissnell/remotendvi/internal/log"
	"github.com/chrissnell/remotendvi/internal/pipeline"
	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
)

// ErrNoRuns is returned when the archive holds no run for either context
var ErrNoRuns = errors.New("no archived runs")

// Config holds the command line options
type Config struct {
	ConfigFile    string
	ConfigBackend string
	OutputDir     string
	Provenance    bool
}

func main() {
	var cfg Config

	flag.StringVar(&cfg.ConfigFile, "config", "config.yaml", "Path to configuration source")
	flag.StringVar(&cfg.ConfigBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	flag.StringVar(&cfg.OutputDir, "out", ".", "Directory the report is written to")
	flag.BoolVar(&cfg.Provenance, "provenance", false, "Also print the scene list to stdout")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := openProvider(cfg.ConfigFile, cfg.ConfigBackend)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer provider.Close()

	path, err := run(context.Background(), cfg, provider, time.Now(), log.GetSugaredLogger())
	if err != nil {
		log.Fatalf("Report failed: %v", err)
	}
	log.Infof("Report written to %s", path)
}

func openProvider(file, backend string) (config.ConfigProvider, error) {
	switch backend {
	case "yaml":
		return config.NewYAMLProvider(file), nil
	case "sqlite":
		return config.NewSQLiteProvider(file)
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s", backend)
	}
}

// run restores the latest runs and writes the report, returning its path
func run(ctx context.Context, cfg Config, provider config.ConfigProvider, now time.Time, logger *zap.SugaredLogger) (string, error) {
	cfgData, err := provider.LoadConfig()
	if err != nil {
		return "", err
	}
	if cfgData.Storage.Backend == storage.BackendNone {
		return "", fmt.Errorf("storage backend %q keeps no runs to report on", storage.BackendNone)
	}

	archive, err := storage.Open(ctx, app.StorageConfig(cfgData.Storage), logger)
	if err != nil {
		return "", fmt.Errorf("opening run archive: %w", err)
	}
	svc, err := pipeline.NewService(nil, nil, archive, app.AnalysisParams(cfgData.Analysis), logger)
	if err != nil {
		archive.Close()
		return "", err
	}
	defer svc.Close()

	if err := svc.Restore(ctx); err != nil {
		return "", err
	}
	analysis := svc.Analysis()
	if len(analysis.Main.All()) == 0 && len(analysis.Comparison.All()) == 0 {
		return "", ErrNoRuns
	}

	path := filepath.Join(cfg.OutputDir, export.FileName(now))
	if err := os.WriteFile(path, []byte(analysis.Report()), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	if cfg.Provenance {
		fmt.Println(analysis.SceneList())
	}
	return path, nil
}
