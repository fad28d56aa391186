// Package upload pushes local TCX exports to a remote TCXStat server,
// remembering what was already sent.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meltforce/tcxstat/internal/archive"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	ActivitiesInserted   int
	ActivitiesDuplicated int
	TrackpointsSent      int64
}

// Uploader walks a directory of TCX files and POSTs the ones not yet
// recorded in the state DB.
type Uploader struct {
	client *Client
	state  *StateDB
	root   string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader.
func New(client *Client, state *StateDB, root string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		state:  state,
		root:   root,
		dryRun: dryRun,
		log:    log,
	}
}

// Run executes the upload pipeline. A server that keeps failing aborts the
// run; per-file problems are logged and counted.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	files, err := archive.FindActivityFiles(u.root)
	if err != nil {
		return &u.stats, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		u.stats.FilesTotal++
		if err := u.processFile(ctx, f); err != nil {
			return &u.stats, err
		}
	}

	u.log.Info("upload finished",
		"files", u.stats.FilesTotal,
		"uploaded", u.stats.FilesUploaded,
		"skipped", u.stats.FilesSkipped,
		"errored", u.stats.FilesErrored,
	)
	return &u.stats, nil
}

func (u *Uploader) processFile(ctx context.Context, path string) error {
	relPath, _ := filepath.Rel(u.root, path)
	info, err := os.Stat(path)
	if err != nil {
		u.log.Warn("stat failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	hash, err := HashFile(path)
	if err != nil {
		u.log.Warn("hash failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	prev, err := u.state.Lookup(ctx, relPath)
	if err != nil {
		u.log.Warn("state check failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	if prev.Matches(info.Size(), hash) {
		u.stats.FilesSkipped++
		return nil
	}
	if prev != nil {
		u.log.Info("file changed since last upload", "file", relPath, "sent_at", prev.SentAt)
	}

	data, err := archive.ReadAll(path)
	if err != nil {
		u.log.Warn("read failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	if u.dryRun {
		u.log.Info("dry-run: would send", "file", relPath, "bytes", len(data))
		u.stats.FilesUploaded++
		return nil
	}

	result, err := u.client.SendActivity(ctx, data)
	if err != nil {
		if isPermanent(err) {
			u.log.Warn("server rejected file", "file", relPath, "error", err)
			u.stats.FilesErrored++
			return nil
		}
		return fmt.Errorf("sending %s: %w", relPath, err)
	}

	u.stats.FilesUploaded++
	u.stats.ActivitiesInserted += result.ActivitiesInserted
	u.stats.ActivitiesDuplicated += result.ActivitiesReceived - result.ActivitiesInserted
	u.stats.TrackpointsSent += int64(result.TrackpointsReceived)

	rec := Record{RelPath: relPath, Size: info.Size(), Hash: hash, ActivityID: result.ActivityID}
	if err := u.state.Save(ctx, rec); err != nil {
		u.log.Warn("failed to mark uploaded", "file", relPath, "error", err)
	}
	return nil
}
