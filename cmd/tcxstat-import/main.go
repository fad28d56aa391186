package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meltforce/tcxstat/internal/config"
	"github.com/meltforce/tcxstat/internal/importer"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	"github.com/meltforce/tcxstat/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dir := flag.String("path", "", "directory of .tcx, .tcx.gz or .tcx.zst files (required)")
	dryRun := flag.Bool("dry-run", false, "decode and count without writing to the database")
	userID := flag.Int("user", 1, "user ID that owns the imported activities")
	migrationsDir := flag.String("migrations", "migrations", "directory holding the SQL migrations")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: tcxstat-import -config config.yaml -path /path/to/exports [-dry-run] [-user N]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		log.Error("path does not exist or is not a directory", "path", *dir)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	opts, err := tcx.Options(cfg.Decode.GPSOnly(), cfg.Decode.NullHandling)
	if err != nil {
		log.Error("invalid decode config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ing importer.Ingester
	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	} else {
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, *migrationsDir); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		db, err := storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")
		ing = tcx.NewProvider(db, log, opts...)
	}

	imp := importer.New(ing, log, *dryRun, opts...)
	imp.UserID = *userID
	stats, err := imp.Import(ctx, *dir)
	printStats(log, stats)
	if err != nil {
		log.Error("import failed", "error", err)
		os.Exit(1)
	}
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_found", stats.FilesFound,
		"files_processed", stats.FilesProcessed,
		"files_errored", stats.FilesErrored,
		"activities_inserted", stats.ActivitiesInserted,
		"activities_duplicated", stats.ActivitiesDuplicated,
		"laps_inserted", stats.LapsInserted,
		"trackpoints_inserted", stats.TrackpointsInserted,
	)
	for _, e := range stats.Errors {
		log.Warn("file failed", "file", e.File, "error", e.Error)
	}
}
