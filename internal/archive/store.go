// Package archive keeps a durable history of finished jobs in SQLite. The
// live job store only holds jobs the daemon is still serving; the archive is
// the long-term record the history command reads.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"meetscribe/internal/jobs"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must be deleted after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Entry is one archived job.
type Entry struct {
	JobID             string    `json:"job_id"`
	Filename          string    `json:"filename"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	Error             string    `json:"error,omitempty"`
	Language          string    `json:"language,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	SegmentCount      int       `json:"segment_count"`
	SpeakerCount      int       `json:"speaker_count"`
	Summary           string    `json:"summary,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	CompletedAt       time.Time `json:"completed_at"`
	ArchivedAt        time.Time `json:"archived_at"`
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under stateDir.
func Open(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to rebuild)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record archives a terminal job, replacing any earlier entry for the same
// job id. Non-terminal jobs are rejected.
func (s *Store) Record(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("job %s is not terminal (%s)", job.ID, job.Status)
	}

	entry := entryFromJob(job)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_history (
			job_id, filename, method, status, error, language,
			duration_seconds, processing_seconds, segment_count, speaker_count,
			summary, created_at, completed_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			language = excluded.language,
			duration_seconds = excluded.duration_seconds,
			processing_seconds = excluded.processing_seconds,
			segment_count = excluded.segment_count,
			speaker_count = excluded.speaker_count,
			summary = excluded.summary,
			completed_at = excluded.completed_at,
			archived_at = excluded.archived_at`,
		entry.JobID, entry.Filename, entry.Method, entry.Status, entry.Error, entry.Language,
		entry.DurationSeconds, entry.ProcessingSeconds, entry.SegmentCount, entry.SpeakerCount,
		entry.Summary, formatTime(entry.CreatedAt), formatTime(entry.CompletedAt), formatTime(entry.ArchivedAt))
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// List returns archived jobs newest first, at most limit entries. limit <= 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT job_id, filename, method, status, error, language,
		       duration_seconds, processing_seconds, segment_count, speaker_count,
		       summary, created_at, completed_at, archived_at
		FROM job_history
		ORDER BY completed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var createdAt, completedAt, archivedAt string
		if err := rows.Scan(
			&entry.JobID, &entry.Filename, &entry.Method, &entry.Status, &entry.Error, &entry.Language,
			&entry.DurationSeconds, &entry.ProcessingSeconds, &entry.SegmentCount, &entry.SpeakerCount,
			&entry.Summary, &createdAt, &completedAt, &archivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.CreatedAt = parseTime(createdAt)
		entry.CompletedAt = parseTime(completedAt)
		entry.ArchivedAt = parseTime(archivedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// Prune removes entries archived before cutoff and returns the removed count.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM job_history WHERE archived_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned rows: %w", err)
	}
	return removed, nil
}

func entryFromJob(job *jobs.Job) Entry {
	entry := Entry{
		JobID:      job.ID,
		Filename:   job.Filename,
		Method:     job.Options.Method,
		Status:     string(job.Status),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		ArchivedAt: time.Now().UTC(),
	}
	if job.CompletedAt != nil {
		entry.CompletedAt = *job.CompletedAt
	} else {
		entry.CompletedAt = job.UpdatedAt
	}
	if job.Result != nil {
		entry.Language = job.Result.Transcript.Language
		entry.DurationSeconds = job.Result.Transcript.Duration
		entry.ProcessingSeconds = job.Result.ProcessingSeconds
		entry.SegmentCount = len(job.Result.Transcript.Segments)
		entry.SpeakerCount = job.Result.Transcript.SpeakerCount
		if job.Result.Analysis != nil {
			entry.Summary = truncateSummary(job.Result.Analysis.Summary)
		}
	}
	return entry
}

func truncateSummary(summary string) string {
	const max = 500
	summary = strings.TrimSpace(summary)
	if len(summary) > max {
		return summary[:max]
	}
	return summary
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
