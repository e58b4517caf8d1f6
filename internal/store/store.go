// Package store provides the durable local stores backing the sync engine:
// the task snapshot cache, the assignee label cache, the outbox, the
// dead-letter archive, and the attachment batch blob store.
//
// Everything lives in one SQLite database opened in embedded mode with WAL,
// so a queue mutation and its dependent cache mutation can share a
// transaction. The database file doubles as the cross-instance signal: a
// peer instance watching the directory sees WAL activity and wakes its own
// replay pass.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a task, entry, batch, or dead letter does
// not exist. Check with errors.Is.
var ErrNotFound = errors.New("not found")

// Local id scopes for the allocator. Tasks and comments draw from separate
// negative counters so their ids stay independently stable.
const (
	ScopeTask    = "task"
	ScopeComment = "comment"
)

// timeFormat is the column format for timestamps. The fractional second is
// fixed-width (RFC3339Nano trims trailing zeros, so ".12Z" would sort after
// ".123Z" in a string comparison) and values are normalized to UTC, which
// keeps lexicographic ordering equal to chronological ordering for the
// outbox FIFO and due-time queries.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// Store wraps the SQLite database holding all durable client state.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store at the given path.
//
// The database is opened in embedded mode with WAL for concurrent readers.
// The schema is created if missing. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "taskpilot.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates all tables and indexes. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY,
		snapshot TEXT NOT NULL,  -- JSON model.Task
		is_pending INTEGER NOT NULL DEFAULT 0,
		sync_error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignees (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		payload TEXT NOT NULL,  -- JSON, kind-specific
		created_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_retry_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS dead_letters (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL,
		reason TEXT NOT NULL,
		failed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachment_batches (
		id TEXT PRIMARY KEY,
		task_id INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachment_files (
		batch_id TEXT NOT NULL REFERENCES attachment_batches(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (batch_id, position)
	);

	CREATE TABLE IF NOT EXISTS local_ids (
		scope TEXT PRIMARY KEY,
		next_id INTEGER NOT NULL  -- negative, strictly decreasing
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_task ON outbox(task_id);
	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(next_retry_at, created_at);
	CREATE INDEX IF NOT EXISTS idx_batches_task ON attachment_batches(task_id);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// NextLocalID allocates the next temporary negative id for the scope.
// Ids are strictly decreasing and never reused, even across restarts.
func (s *Store) NextLocalID(scope string) (int64, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRow(`SELECT next_id FROM local_ids WHERE scope = ?`, scope).Scan(&next)
	switch {
	case err == sql.ErrNoRows:
		next = -1
		if _, err := tx.Exec(`INSERT INTO local_ids (scope, next_id) VALUES (?, ?)`, scope, next-1); err != nil {
			return 0, fmt.Errorf("failed to seed local id counter: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to read local id counter: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE local_ids SET next_id = ? WHERE scope = ?`, next-1, scope); err != nil {
			return 0, fmt.Errorf("failed to advance local id counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit local id allocation: %w", err)
	}

	return next, nil
}
