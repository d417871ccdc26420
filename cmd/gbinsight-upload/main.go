package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/importer"
	"github.com/claude/gbinsight/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "gbinsight server URL (e.g. https://gbinsight.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("GBINSIGHT_API_KEY"), "ingest API key (default $GBINSIGHT_API_KEY)")
	exportPath := flag.String("path", "", "path to a Gadgetbridge database export")
	fitPath := flag.String("fit", "", "path to a FIT file or a directory of FIT files")
	device := flag.String("device", "", "device identifier (Bluetooth address) for FIT files")
	configPath := flag.String("config", "", "optional config file with import table settings")
	dryRun := flag.Bool("dry-run", false, "read and convert but don't send to server")
	batchSize := flag.Int("batch-size", upload.DefaultBatchSize, "samples per request")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("gbinsight-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" && *fitPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: gbinsight-upload -server <URL> [-path export.db] [-fit dir -device <address>] [-dry-run] [-batch-size N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	if *fitPath != "" && *device == "" {
		fmt.Fprintf(os.Stderr, "Error: -device is required with -fit\n")
		os.Exit(1)
	}

	// Strip trailing slash from server URL
	*serverURL = strings.TrimRight(*serverURL, "/")

	ic, err := config.LoadImport(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open state database
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	state, err := importer.OpenStateDB(filepath.Join(homeDir, ".gbinsight-upload"))
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	if *dryRun {
		log.Info("DRY RUN mode: files will be read and converted but not sent")
	}

	client := upload.NewClient(*serverURL, *apiKey, *batchSize)
	imp := importer.New(client, nil, state, ic, log, *dryRun).WithStateTarget(*serverURL)

	ctx := context.Background()
	stats := &importer.Stats{}
	if *exportPath != "" {
		if stats, err = imp.Import(ctx, *exportPath); err != nil {
			log.Error("upload failed", "path", *exportPath, "error", err)
			printStats(stats)
			os.Exit(1)
		}
	}
	if *fitPath != "" {
		fits, err := importer.FITFiles(*fitPath)
		if err != nil {
			log.Error("reading FIT path failed", "path", *fitPath, "error", err)
			os.Exit(1)
		}
		for _, f := range fits {
			if stats, err = imp.ImportFIT(ctx, f, *device); err != nil {
				log.Error("upload failed", "path", f, "error", err)
				printStats(stats)
				os.Exit(1)
			}
		}
	}

	printStats(stats)
	log.Info("upload complete")
}

func printStats(stats *importer.Stats) {
	fmt.Println()
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Files processed:  %d\n", stats.FilesProcessed)
	fmt.Printf("  Files skipped:    %d (already uploaded)\n", stats.FilesSkipped)
	fmt.Printf("  Devices:          %d\n", stats.Devices)
	fmt.Println()
	fmt.Printf("  Activity read:    %d\n", stats.ActivityRead)
	fmt.Printf("  Activity stored:  %d (%d duplicates)\n", stats.ActivityInserted, stats.ActivitySkipped)
	fmt.Printf("  Stress read:      %d\n", stats.StressRead)
	fmt.Printf("  Stress stored:    %d (%d duplicates)\n", stats.StressInserted, stats.StressSkipped)
	fmt.Println()
}
