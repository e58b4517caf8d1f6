package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

// AddEntry appends a pending mutation to the outbox.
func (s *Store) AddEntry(e *model.OutboxEntry) error {
	if !e.Op.Valid() {
		return fmt.Errorf("invalid operation kind %q", e.Op)
	}

	query := `
	INSERT INTO outbox (id, op, task_id, payload, created_at, retry_count, next_retry_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.Exec(query,
		e.ID,
		string(e.Op),
		e.TaskID,
		string(e.Payload),
		formatTime(e.CreatedAt),
		e.RetryCount,
		formatTime(e.NextRetryAt),
		e.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to add outbox entry %s: %w", e.ID, err)
	}

	return nil
}

// RescheduleEntry persists a new retry count, next-eligible time, and last
// error for an entry after a failed replay attempt.
func (s *Store) RescheduleEntry(id string, retryCount int, nextRetryAt time.Time, lastError string) error {
	res, err := s.conn.Exec(`
		UPDATE outbox SET retry_count = ?, next_retry_at = ?, last_error = ?
		WHERE id = ?
	`, retryCount, formatTime(nextRetryAt), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule entry %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteEntry removes an entry from the outbox.
// Returns nil if the entry doesn't exist (idempotent).
func (s *Store) DeleteEntry(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox entry %s: %w", id, err)
	}
	return nil
}

// DueEntries returns entries whose next-eligible time has elapsed,
// oldest creation first (FIFO among eligible entries).
func (s *Store) DueEntries(now time.Time) ([]*model.OutboxEntry, error) {
	return s.queryEntries(`
		SELECT id, op, task_id, payload, created_at, retry_count, next_retry_at, last_error
		FROM outbox
		WHERE next_retry_at <= ?
		ORDER BY created_at ASC
	`, formatTime(now))
}

// AllEntries returns every outbox entry regardless of eligibility,
// oldest creation first. Used by forced ("sync now") passes.
func (s *Store) AllEntries() ([]*model.OutboxEntry, error) {
	return s.queryEntries(`
		SELECT id, op, task_id, payload, created_at, retry_count, next_retry_at, last_error
		FROM outbox
		ORDER BY created_at ASC
	`)
}

// EntriesForTask returns the pending entries targeting one task, oldest first.
func (s *Store) EntriesForTask(taskID int64) ([]*model.OutboxEntry, error) {
	return s.queryEntries(`
		SELECT id, op, task_id, payload, created_at, retry_count, next_retry_at, last_error
		FROM outbox
		WHERE task_id = ?
		ORDER BY created_at ASC
	`, taskID)
}

// DeleteEntriesForTask removes every pending entry targeting the task.
// Used when a never-synced task is deleted locally.
func (s *Store) DeleteEntriesForTask(taskID int64) error {
	if _, err := s.conn.Exec(`DELETE FROM outbox WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete outbox entries for task %d: %w", taskID, err)
	}
	return nil
}

// HasEntriesForTask reports whether any pending entry still targets the task.
func (s *Store) HasEntriesForTask(taskID int64) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM outbox WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count outbox entries for task %d: %w", taskID, err)
	}
	return n > 0, nil
}

// OutboxCount returns the number of pending entries.
func (s *Store) OutboxCount() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}

// EarliestNextRetry returns the soonest next-eligible time across all
// entries, or nil if the outbox is empty. The engine arms its due timer
// from this after every queue mutation.
func (s *Store) EarliestNextRetry() (*time.Time, error) {
	var raw sql.NullString
	err := s.conn.QueryRow(`SELECT MIN(next_retry_at) FROM outbox`).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest retry: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}

	t, err := time.Parse(timeFormat, raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse earliest retry time: %w", err)
	}
	return &t, nil
}

// AddDeadLetter archives an exhausted entry.
func (s *Store) AddDeadLetter(d *model.DeadLetter) error {
	query := `
	INSERT INTO dead_letters (id, op, task_id, payload, created_at, retry_count, reason, failed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.Exec(query,
		d.ID,
		string(d.Op),
		d.TaskID,
		string(d.Payload),
		formatTime(d.CreatedAt),
		d.RetryCount,
		d.Reason,
		formatTime(d.FailedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to archive dead letter %s: %w", d.ID, err)
	}

	return nil
}

// GetDeadLetter retrieves one archived entry.
// Returns ErrNotFound if it doesn't exist.
func (s *Store) GetDeadLetter(id string) (*model.DeadLetter, error) {
	row := s.conn.QueryRow(`
		SELECT id, op, task_id, payload, created_at, retry_count, reason, failed_at
		FROM dead_letters WHERE id = ?
	`, id)

	d, err := scanDeadLetter(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dead letter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letter %s: %w", id, err)
	}
	return d, nil
}

// ListDeadLetters returns all archived entries, most recent failure first.
func (s *Store) ListDeadLetters() ([]*model.DeadLetter, error) {
	rows, err := s.conn.Query(`
		SELECT id, op, task_id, payload, created_at, retry_count, reason, failed_at
		FROM dead_letters
		ORDER BY failed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*model.DeadLetter
	for rows.Next() {
		d, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return letters, nil
}

// DeleteDeadLetter removes an archived entry.
// Returns nil if it doesn't exist (idempotent).
func (s *Store) DeleteDeadLetter(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM dead_letters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete dead letter %s: %w", id, err)
	}
	return nil
}

// queryEntries runs an outbox query and scans the results.
func (s *Store) queryEntries(query string, args ...any) ([]*model.OutboxEntry, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*model.OutboxEntry
	for rows.Next() {
		var (
			e                    model.OutboxEntry
			op, payload          string
			createdAt, nextRetry string
		)

		err := rows.Scan(&e.ID, &op, &e.TaskID, &payload, &createdAt, &e.RetryCount, &nextRetry, &e.LastError)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}

		e.Op = model.OpKind(op)
		e.Payload = []byte(payload)

		if e.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for entry %s: %w", e.ID, err)
		}
		if e.NextRetryAt, err = time.Parse(timeFormat, nextRetry); err != nil {
			return nil, fmt.Errorf("failed to parse next_retry_at for entry %s: %w", e.ID, err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}

	return entries, nil
}

// scanDeadLetter scans one dead letter row via the given scan function.
func scanDeadLetter(scan func(...any) error) (*model.DeadLetter, error) {
	var (
		d                              model.DeadLetter
		op, payload, created, failedAt string
	)

	if err := scan(&d.ID, &op, &d.TaskID, &payload, &created, &d.RetryCount, &d.Reason, &failedAt); err != nil {
		return nil, err
	}

	d.Op = model.OpKind(op)
	d.Payload = []byte(payload)

	var err error
	if d.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if d.FailedAt, err = time.Parse(timeFormat, failedAt); err != nil {
		return nil, fmt.Errorf("failed to parse failed_at: %w", err)
	}

	return &d, nil
}
