package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chordcast/internal/config"
)

// ErrNotFound is returned when a session ID has no row.
var ErrNotFound = errors.New("session not found")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 20

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const entryColumns = "id, status, output, sample_rate, fps, frame_width, frame_height, started_at, ended_at, samples_written, frames_written, audio_seconds, video_seconds, overruns, error_message"

// Store manages the session ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under the state dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the history database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: filepath.Clean(dbPath)}
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

// Begin records a session as running.
func (s *Store) Begin(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("session id required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	return s.execWithRetry(ctx,
		`INSERT INTO sessions (
            id, status, output, sample_rate, fps, frame_width, frame_height, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(StatusRunning),
		rec.Output,
		rec.SampleRate,
		rec.FPS,
		rec.FrameWidth,
		rec.FrameHeight,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
	)
}

// Finish completes the row for id with the session's outcome.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	if out.Status == "" {
		out.Status = StatusCompleted
	}
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions
             SET status = ?, ended_at = ?, samples_written = ?, frames_written = ?,
                 audio_seconds = ?, video_seconds = ?, overruns = ?, error_message = ?
             WHERE id = ?`,
			string(out.Status),
			time.Now().UTC().Format(time.RFC3339Nano),
			out.SamplesWritten,
			out.FramesWritten,
			out.AudioSeconds,
			out.VideoSeconds,
			out.Overruns,
			nullableString(out.Error),
			id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get fetches one session by ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM sessions WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return entry, nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+entryColumns+` FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		e          Entry
		status     string
		startedRaw string
		endedRaw   sql.NullString
		errMsg     sql.NullString
	)
	if err := scanner.Scan(
		&e.ID,
		&status,
		&e.Output,
		&e.SampleRate,
		&e.FPS,
		&e.FrameWidth,
		&e.FrameHeight,
		&startedRaw,
		&endedRaw,
		&e.SamplesWritten,
		&e.FramesWritten,
		&e.AudioSeconds,
		&e.VideoSeconds,
		&e.Overruns,
		&errMsg,
	); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.Error = errMsg.String
	started, err := time.Parse(time.RFC3339Nano, startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	e.StartedAt = started
	if endedRaw.Valid && endedRaw.String != "" {
		ended, err := time.Parse(time.RFC3339Nano, endedRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		e.EndedAt = &ended
	}
	return &e, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
