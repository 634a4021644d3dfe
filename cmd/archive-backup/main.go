package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/log"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
)

// Dump is the backup file layout: the latest run of each context plus
// every annotation
type Dump struct {
	CreatedAt   time.Time
	Runs        []storage.Run
	Annotations []series.Annotation
}

// Config of one backup or restore
type Config struct {
	Storage storage.Config
	File    string
	Restore bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.Storage.Backend, "backend", storage.BackendSQLite, "Run archive backend: sqlite or postgres")
	flag.StringVar(&cfg.Storage.SQLitePath, "sqlite-path", "remotendvi.db", "SQLite run archive")
	flag.StringVar(&cfg.Storage.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	flag.StringVar(&cfg.File, "file", "ndvi_backup.msgpack", "Backup file")
	flag.BoolVar(&cfg.Restore, "restore", false, "Restore the backup file into the archive instead of writing one")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	ctx := context.Background()
	var err error
	if cfg.Restore {
		err = restore(ctx, cfg, logger)
	} else {
		err = backup(ctx, cfg, time.Now(), logger)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func openArchive(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (storage.Store, error) {
	if cfg.Storage.Backend == storage.BackendNone {
		return nil, errors.New("the none backend keeps nothing to back up or restore into")
	}
	return storage.Open(ctx, cfg.Storage, logger)
}

// backup writes the archive's latest runs and annotations to cfg.File
func backup(ctx context.Context, cfg Config, now time.Time, logger *zap.SugaredLogger) error {
	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	dump := Dump{CreatedAt: now}
	for _, c := range []series.Context{series.ContextMain, series.ContextComparison} {
		run, err := archive.LatestRun(ctx, c)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s run: %w", c, err)
		}
		dump.Runs = append(dump.Runs, run)
	}
	if dump.Annotations, err = archive.Annotations(ctx); err != nil {
		return fmt.Errorf("reading annotations: %w", err)
	}

	data, err := msgpack.Marshal(dump)
	if err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}
	if err := os.WriteFile(cfg.File, data, 0o644); err != nil {
		return err
	}
	logger.Infof("backed up %d runs and %d annotations to %s", len(dump.Runs), len(dump.Annotations), cfg.File)
	return nil
}

// restore saves every run and annotation of cfg.File into the archive.
// Runs already present are skipped.
func restore(ctx context.Context, cfg Config, logger *zap.SugaredLogger) error {
	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return err
	}
	var dump Dump
	if err := msgpack.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("decoding backup: %w", err)
	}

	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	restored := 0
	for _, run := range dump.Runs {
		if latest, err := archive.LatestRun(ctx, run.Context); err == nil && latest.ID == run.ID {
			logger.Infof("run %s of %s already archived", run.ID, run.Context)
			continue
		}
		if err := archive.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("restoring run %s: %w", run.ID, err)
		}
		restored++
	}
	for _, a := range dump.Annotations {
		if err := archive.SaveAnnotation(ctx, a); err != nil {
			return fmt.Errorf("restoring annotation %s: %w", a.FeatureID, err)
		}
	}
	logger.Infof("restored %d runs and %d annotations from backup of %s",
		restored, len(dump.Annotations), dump.CreatedAt.Format(time.RFC3339))
	return nil
}
