// Package importer bulk-loads TCX exports from a directory tree.
package importer

import (
	"context"
	"io"
	"log/slog"

	"github.com/meltforce/tcxstat/internal/archive"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
)

// Stats tracks import progress.
type Stats struct {
	FilesFound     int `json:"files_found"`
	FilesProcessed int `json:"files_processed"`
	FilesErrored   int `json:"files_errored"`

	ActivitiesInserted   int   `json:"activities_inserted"`
	ActivitiesDuplicated int   `json:"activities_duplicated"`
	LapsInserted         int64 `json:"laps_inserted"`
	TrackpointsInserted  int64 `json:"trackpoints_inserted"`

	Errors []FileError `json:"errors,omitempty"`
}

// FileError records why one file could not be imported.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Progress is reported after every file.
type Progress struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	File  string `json:"file"`
	Stats Stats  `json:"stats"`
}

// Ingester stores one TCX document. *tcx.Provider implements it.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error)
}

// Importer reads TCX files from a directory tree and inserts them into the DB.
type Importer struct {
	ingester Ingester
	log      *slog.Logger
	dryRun   bool
	opts     []tcx.Option
	stats    Stats

	// UserID owns the imported activities. Defaults to 1.
	UserID int
	// OnProgress, when set, is called after each file.
	OnProgress func(Progress)
}

// New creates a new Importer. With a nil ingester or in dry-run mode files
// are only decoded with opts and counted.
func New(ing Ingester, log *slog.Logger, dryRun bool, opts ...tcx.Option) *Importer {
	return &Importer{ingester: ing, log: log, dryRun: dryRun, opts: opts, UserID: 1}
}

// Import processes every TCX file under dir. Individual file failures are
// counted and logged; only cancellation or a filesystem error aborts.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	files, err := archive.FindActivityFiles(dir)
	if err != nil {
		return &imp.stats, err
	}
	imp.stats.FilesFound = len(files)
	imp.log.Info("importing activities", "dir", dir, "files", len(files), "dry_run", imp.dryRun)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}

		if err := imp.importFile(ctx, f); err != nil {
			imp.log.Warn("import failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			imp.stats.Errors = append(imp.stats.Errors, FileError{File: f, Error: err.Error()})
		} else {
			imp.stats.FilesProcessed++
		}

		if imp.OnProgress != nil {
			imp.OnProgress(Progress{Done: i + 1, Total: len(files), File: f, Stats: imp.stats})
		}
	}

	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, path string) error {
	r, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if imp.dryRun || imp.ingester == nil {
		act, err := tcx.Decode(r, append([]tcx.Option{tcx.WithLogger(imp.log)}, imp.opts...)...)
		if err != nil {
			return err
		}
		imp.stats.ActivitiesInserted++
		imp.stats.LapsInserted += int64(len(act.Laps))
		for _, lap := range act.Laps {
			imp.stats.TrackpointsInserted += int64(len(lap.Trackpoints))
		}
		return nil
	}

	res, err := imp.ingester.Ingest(ctx, r, imp.UserID)
	if err != nil {
		return err
	}
	imp.stats.ActivitiesInserted += res.ActivitiesInserted
	imp.stats.ActivitiesDuplicated += res.ActivitiesReceived - res.ActivitiesInserted
	imp.stats.LapsInserted += res.LapsInserted
	imp.stats.TrackpointsInserted += res.TrackpointsInserted
	return nil
}
