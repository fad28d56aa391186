package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const stateSchema = `CREATE TABLE IF NOT EXISTS sent_files (
	rel_path    TEXT PRIMARY KEY,
	size        INTEGER NOT NULL,
	sha256      TEXT NOT NULL,
	activity_id TEXT NOT NULL DEFAULT '',
	sent_at     INTEGER NOT NULL
)`

// Record is what the state DB remembers about one sent file.
type Record struct {
	RelPath    string
	Size       int64
	Hash       string
	ActivityID string
	SentAt     time.Time
}

// Matches reports whether the file on disk is the one that was sent.
func (r *Record) Matches(size int64, hash string) bool {
	return r != nil && r.Size == size && r.Hash == hash
}

// StateDB is a SQLite file under the state directory listing the files the
// server has already accepted.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens or creates dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dsn := "file:" + filepath.Join(dir, "state.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	return &StateDB{db: db}, nil
}

// Lookup returns the record for relPath, or nil if it was never sent.
func (s *StateDB) Lookup(ctx context.Context, relPath string) (*Record, error) {
	r := Record{RelPath: relPath}
	var sentAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT size, sha256, activity_id, sent_at FROM sent_files WHERE rel_path = ?`, relPath,
	).Scan(&r.Size, &r.Hash, &r.ActivityID, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", relPath, err)
	}
	r.SentAt = time.Unix(sentAt, 0).UTC()
	return &r, nil
}

// Save stores r, replacing any earlier record for the same path.
func (s *StateDB) Save(ctx context.Context, r Record) error {
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_files (rel_path, size, sha256, activity_id, sent_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (rel_path) DO UPDATE SET
		   size = excluded.size, sha256 = excluded.sha256,
		   activity_id = excluded.activity_id, sent_at = excluded.sent_at`,
		r.RelPath, r.Size, r.Hash, r.ActivityID, r.SentAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", r.RelPath, err)
	}
	return nil
}

// Count returns the number of recorded files.
func (s *StateDB) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_files`).Scan(&n)
	return n, err
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashFile returns the hex SHA-256 of the file as stored on disk, so a
// recompressed export counts as a new file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
