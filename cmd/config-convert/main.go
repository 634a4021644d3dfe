package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/chrissnell/remotendvi/pkg/config"
)

// Options of one conversion
type Options struct {
	YAMLFile   string
	SQLiteFile string
	Force      bool
	DryRun     bool
}

// ErrTargetExists is returned when the SQLite file exists and Force is unset
var ErrTargetExists = errors.New("sqlite file already exists")

func main() {
	var opts Options
	flag.StringVar(&opts.YAMLFile, "yaml", "", "Path to YAML configuration file (required)")
	flag.StringVar(&opts.SQLiteFile, "sqlite", "", "Path to SQLite database file (required)")
	flag.BoolVar(&opts.Force, "force", false, "Overwrite existing SQLite database")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be done without executing")
	flag.Parse()

	if opts.YAMLFile == "" || opts.SQLiteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := convert(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// convert loads the YAML configuration, writes it into a fresh SQLite
// configuration database and reads it back to check nothing was lost
func convert(opts Options, out io.Writer) error {
	fmt.Fprintf(out, "Converting YAML configuration to SQLite...\n")
	fmt.Fprintf(out, "  Source: %s\n", opts.YAMLFile)
	fmt.Fprintf(out, "  Target: %s\n", opts.SQLiteFile)

	if _, err := os.Stat(opts.SQLiteFile); err == nil && !opts.Force {
		return fmt.Errorf("%w: %s (use -force to overwrite)", ErrTargetExists, opts.SQLiteFile)
	}

	configData, err := config.NewYAMLProvider(opts.YAMLFile).LoadConfig()
	if err != nil {
		return fmt.Errorf("loading YAML configuration: %w", err)
	}

	if opts.DryRun {
		fmt.Fprintln(out, "DRY RUN - No changes will be made")
		printConfigSummary(out, configData)
		return nil
	}

	if opts.Force {
		if err := os.Remove(opts.SQLiteFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing existing SQLite file: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(opts.SQLiteFile), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	provider, err := config.NewSQLiteProvider(opts.SQLiteFile)
	if err != nil {
		return err
	}
	defer provider.Close()

	fmt.Fprintf(out, "  Inserting %d regions and 4 sections...\n", len(configData.Regions))
	if err := provider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	stored, err := provider.LoadConfig()
	if err != nil {
		return fmt.Errorf("reading back configuration: %w", err)
	}
	if diff := cmp.Diff(configData, stored, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("stored configuration differs from YAML (-yaml +sqlite):\n%s", diff)
	}

	fmt.Fprintf(out, "Conversion completed successfully!\n")
	fmt.Fprintf(out, "You can now use the SQLite backend with: -config-backend sqlite -config %s\n", opts.SQLiteFile)
	return nil
}

func printConfigSummary(out io.Writer, c *config.ConfigData) {
	fmt.Fprintln(out, "\nConfiguration Summary:")
	switch c.Catalog.Backend {
	case "file":
		fmt.Fprintf(out, "Catalog: file %s\n", c.Catalog.File)
	default:
		fmt.Fprintf(out, "Catalog: STAC %s (%s)\n", c.Catalog.SearchURL, c.Catalog.Collection)
	}
	fmt.Fprintf(out, "Search: %s/%s, cloud cover < %g%%\n", c.Catalog.Search.Start, c.Catalog.Search.End, c.Catalog.Search.CloudCover)
	fmt.Fprintf(out, "Storage: %s\n", c.Storage.Backend)
	fmt.Fprintf(out, "Server: %s:%d\n", c.Server.ListenAddr, c.Server.Port)

	fmt.Fprintf(out, "\nRegions (%d):\n", len(c.Regions))
	for _, r := range c.Regions {
		name := r.ID
		if r.File != "" {
			name = r.File
		}
		fmt.Fprintf(out, "  - [%s] %s %s\n", r.Context, r.Kind, name)
	}
}
