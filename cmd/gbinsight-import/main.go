package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/importer"
	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportPath := flag.String("path", "", "path to a Gadgetbridge database export")
	fitPath := flag.String("fit", "", "path to a FIT file or a directory of FIT files")
	device := flag.String("device", "", "device identifier (Bluetooth address) for FIT files")
	stateDir := flag.String("state-dir", "", "directory of the import state database (default ~/.gbinsight)")
	dryRun := flag.Bool("dry-run", false, "report counts without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" && *fitPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: gbinsight-import -config config.yaml [-path export.db] [-fit dir -device AA:BB:CC:DD:EE:FF] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *fitPath != "" && *device == "" {
		log.Error("-device is required with -fit")
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()

	// Run migrations
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	// Connect database
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	dir := *stateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(home, ".gbinsight")
	}
	state, err := importer.OpenStateDB(dir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	// Run import
	imp := importer.New(ingest.NewProvider(db, nil, log), db, state, cfg.Import, log, *dryRun)
	var stats *importer.Stats
	if *exportPath != "" {
		if stats, err = imp.Import(ctx, *exportPath); err != nil {
			log.Error("import failed", "path", *exportPath, "error", err)
			printStats(log, stats)
			os.Exit(1)
		}
	}
	if *fitPath != "" {
		files, err := importer.FITFiles(*fitPath)
		if err != nil {
			log.Error("reading FIT path failed", "path", *fitPath, "error", err)
			os.Exit(1)
		}
		for _, f := range files {
			if stats, err = imp.ImportFIT(ctx, f, *device); err != nil {
				log.Error("import failed", "path", f, "error", err)
				printStats(log, stats)
				os.Exit(1)
			}
		}
	}

	if stats != nil {
		printStats(log, stats)
	}
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"devices", stats.Devices,
		"activity_read", stats.ActivityRead,
		"activity_inserted", stats.ActivityInserted,
		"activity_duplicated", stats.ActivitySkipped,
		"stress_read", stats.StressRead,
		"stress_inserted", stats.StressInserted,
		"stress_duplicated", stats.StressSkipped,
	)
}
