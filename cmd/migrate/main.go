package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chrissnell/remotendvi/internal/storage"
	"github.com/chrissnell/remotendvi/pkg/config"
	"github.com/chrissnell/remotendvi/pkg/migrate"
)

func main() {
	var (
		database      = flag.String("db", "archive", "Database schema: archive (run archive) or config")
		dbDSN         = flag.String("dsn", "", "SQLite database file (required)")
		command       = flag.String("command", "status", "Migration command: up, to, version, status")
		targetVersion = flag.String("target", "", "Target version for the to command")
	)
	flag.Parse()

	if *dbDSN == "" {
		fmt.Fprintf(os.Stderr, "Error: -dsn flag is required\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(context.Background(), *database, *dbDSN, *command, *targetVersion, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Migration command failed: %v\n", err)
		os.Exit(1)
	}
}

func migrations(database string) ([]migrate.Migration, error) {
	switch database {
	case "archive":
		return storage.ArchiveMigrations()
	case "config":
		return config.Migrations()
	default:
		return nil, fmt.Errorf("unknown database %q", database)
	}
}

func run(ctx context.Context, database, dsn, command, target string, out io.Writer) error {
	set, err := migrations(database)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := migrate.NewMigrator(db, "", set)
	switch command {
	case "up":
		applied, err := migrator.MigrateUp(ctx)
		printRan(out, "Applied", applied)
		return err
	case "to":
		if target == "" {
			return fmt.Errorf("-target flag is required for the to command")
		}
		version, err := strconv.Atoi(target)
		if err != nil {
			return fmt.Errorf("invalid target version: %w", err)
		}
		ran, err := migrator.MigrateTo(ctx, version)
		printRan(out, "Ran", ran)
		return err
	case "version":
		version, err := migrator.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Current version: %d\n", version)
		return nil
	case "status":
		return showStatus(ctx, migrator, out)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printRan(out io.Writer, verb string, ran []migrate.Migration) {
	for _, m := range ran {
		fmt.Fprintf(out, "%s %03d: %s\n", verb, m.Version, m.Name)
	}
	if len(ran) == 0 {
		fmt.Fprintln(out, "Nothing to do")
	}
}

func showStatus(ctx context.Context, migrator *migrate.Migrator, out io.Writer) error {
	current, err := migrator.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	pending, err := migrator.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Current version: %d of %d\n", current, migrator.Latest())
	fmt.Fprintf(out, "Pending migrations: %d\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %03d: %s\n", m.Version, m.Name)
	}
	return nil
}
