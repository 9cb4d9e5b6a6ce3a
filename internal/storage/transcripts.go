// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrDatabaseError      = errors.New("database error")
)

// =============================================================================
// STORED TYPES
// =============================================================================

// Transcript is one persisted streaming reply.
type Transcript struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Aborted     bool      `json:"aborted,omitempty"`

	Segments []StoredSegment `json:"segments,omitempty"`
}

// StoredSegment is one flushed segment of a transcript, in emission order.
type StoredSegment struct {
	Seq     int    `json:"seq"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// Text returns the full reply text, the concatenation of all segments.
func (t *Transcript) Text() string {
	var out string
	for _, seg := range t.Segments {
		out += seg.Content
	}
	return out
}

// =============================================================================
// STORE
// =============================================================================

// Store persists transcripts in a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id           TEXT PRIMARY KEY,
	model        TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	completed_at INTEGER,
	aborted      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS segments (
	transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	content       TEXT NOT NULL,
	reason        TEXT NOT NULL,
	PRIMARY KEY (transcript_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at DESC);
`

// DefaultPath returns the default transcript database path.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relay", "transcripts.db"), nil
}

// Open opens (creating if needed) the transcript store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE PATH
// =============================================================================

// Begin records a new in-progress transcript and returns its ID.
func (s *Store) Begin(ctx context.Context, model, prompt string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transcripts (id, model, prompt, created_at) VALUES (?, ?, ?, ?)",
		id, model, prompt, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return id, nil
}

// AppendSegment stores the next flushed segment of a transcript.
func (s *Store) AppendSegment(ctx context.Context, transcriptID string, seq int, seg flush.Segment) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO segments (transcript_id, seq, content, reason) VALUES (?, ?, ?, ?)",
		transcriptID, seq, seg.Text, seg.Reason.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Finish marks a transcript complete. aborted records whether the stream
// was cancelled before its natural end.
func (s *Store) Finish(ctx context.Context, transcriptID string, aborted bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transcripts SET completed_at = ?, aborted = ? WHERE id = ?",
		time.Now().UnixMilli(), boolToInt(aborted), transcriptID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTranscriptNotFound
	}
	return nil
}

// =============================================================================
// READ PATH
// =============================================================================

// Get loads one transcript with all its segments.
func (s *Store) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	var created int64
	var completed sql.NullInt64
	var aborted int

	err := s.db.QueryRowContext(ctx,
		"SELECT id, model, prompt, created_at, completed_at, aborted FROM transcripts WHERE id = ?",
		id).Scan(&t.ID, &t.Model, &t.Prompt, &created, &completed, &aborted)
	if err == sql.ErrNoRows {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	t.CreatedAt = time.UnixMilli(created)
	if completed.Valid {
		t.CompletedAt = time.UnixMilli(completed.Int64)
	}
	t.Aborted = aborted != 0

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, content, reason FROM segments WHERE transcript_id = ? ORDER BY seq",
		id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg StoredSegment
		if err := rows.Scan(&seg.Seq, &seg.Content, &seg.Reason); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		t.Segments = append(t.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return &t, nil
}

// List returns transcript headers (no segments), newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, model, prompt, created_at, completed_at, aborted FROM transcripts ORDER BY created_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		var created int64
		var completed sql.NullInt64
		var aborted int
		if err := rows.Scan(&t.ID, &t.Model, &t.Prompt, &created, &completed, &aborted); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		t.CreatedAt = time.UnixMilli(created)
		if completed.Valid {
			t.CompletedAt = time.UnixMilli(completed.Int64)
		}
		t.Aborted = aborted != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes a transcript and its segments.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTranscriptNotFound
	}
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportJSON writes one transcript as pretty-printed JSON.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func (s *Store) ExportJSON(ctx context.Context, id, path string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	return util.AtomicWriteFile(path, data, 0644)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
