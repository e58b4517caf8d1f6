package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

// PutTask inserts or replaces a task snapshot in the cache.
//
// The full task is stored as JSON; is_pending and sync_error are mirrored
// into columns so status queries don't need to parse snapshots.
func (s *Store) PutTask(task *model.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	snapshot, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %d: %w", task.ID, err)
	}

	query := `
	INSERT INTO tasks (id, snapshot, is_pending, sync_error, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		snapshot = excluded.snapshot,
		is_pending = excluded.is_pending,
		sync_error = excluded.sync_error,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.Exec(query,
		task.ID,
		string(snapshot),
		boolToInt(task.IsPending),
		task.SyncError,
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %d: %w", task.ID, err)
	}

	return nil
}

// GetTask retrieves a task snapshot by id.
// Returns ErrNotFound if no snapshot is cached.
func (s *Store) GetTask(id int64) (*model.Task, error) {
	var snapshot string
	err := s.conn.QueryRow(`SELECT snapshot FROM tasks WHERE id = ?`, id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task %d: %w", id, err)
	}

	return unmarshalTask(snapshot)
}

// ListTasks returns all cached task snapshots, most recently updated first.
func (s *Store) ListTasks() ([]*model.Task, error) {
	rows, err := s.conn.Query(`SELECT snapshot FROM tasks ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task, err := unmarshalTask(snapshot)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// DeleteTask removes a task snapshot from the cache.
// Returns nil if the task doesn't exist (idempotent).
func (s *Store) DeleteTask(id int64) error {
	if _, err := s.conn.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return nil
}

// ReplaceTaskID atomically rewrites a reconciled create: the cache row keyed
// by the old negative id is replaced with the canonical task, and every
// outbox entry and attachment batch still referencing the old id is
// repointed at the new one.
//
// Doing all three in one transaction is what keeps dependent queued
// operations from being orphaned on an id that will never reconcile.
func (s *Store) ReplaceTaskID(oldID int64, canonical *model.Task) error {
	if err := canonical.Validate(); err != nil {
		return fmt.Errorf("invalid canonical task: %w", err)
	}

	snapshot, err := json.Marshal(canonical)
	if err != nil {
		return fmt.Errorf("failed to marshal task %d: %w", canonical.ID, err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("failed to remove task %d: %w", oldID, err)
	}

	insert := `
	INSERT INTO tasks (id, snapshot, is_pending, sync_error, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		snapshot = excluded.snapshot,
		is_pending = excluded.is_pending,
		sync_error = excluded.sync_error,
		updated_at = excluded.updated_at
	`
	_, err = tx.Exec(insert,
		canonical.ID,
		string(snapshot),
		boolToInt(canonical.IsPending),
		canonical.SyncError,
		formatTime(canonical.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %d: %w", canonical.ID, err)
	}

	if _, err := tx.Exec(`UPDATE outbox SET task_id = ? WHERE task_id = ?`, canonical.ID, oldID); err != nil {
		return fmt.Errorf("failed to repoint outbox entries from %d to %d: %w", oldID, canonical.ID, err)
	}

	if _, err := tx.Exec(`UPDATE attachment_batches SET task_id = ? WHERE task_id = ?`, canonical.ID, oldID); err != nil {
		return fmt.Errorf("failed to repoint attachment batches from %d to %d: %w", oldID, canonical.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit id reconciliation: %w", err)
	}

	return nil
}

// PutAssignees refreshes the assignee label cache with the given directory.
func (s *Store) PutAssignees(assignees []model.Assignee) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for _, a := range assignees {
		_, err := tx.Exec(`
			INSERT INTO assignees (id, name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
		`, a.ID, a.Name, now)
		if err != nil {
			return fmt.Errorf("failed to upsert assignee %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignee cache update: %w", err)
	}

	return nil
}

// GetAssignee returns the cached label for one assignable user.
// Returns ErrNotFound if the user is not in the cache.
func (s *Store) GetAssignee(id int64) (*model.Assignee, error) {
	var a model.Assignee
	err := s.conn.QueryRow(`SELECT id, name FROM assignees WHERE id = ?`, id).Scan(&a.ID, &a.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignee %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assignee %d: %w", id, err)
	}
	return &a, nil
}

// ListAssignees returns the cached assignable-user directory, by name.
func (s *Store) ListAssignees() ([]model.Assignee, error) {
	rows, err := s.conn.Query(`SELECT id, name FROM assignees ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	defer rows.Close()

	var assignees []model.Assignee
	for rows.Next() {
		var a model.Assignee
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan assignee: %w", err)
		}
		assignees = append(assignees, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignees: %w", err)
	}

	return assignees, nil
}

func unmarshalTask(snapshot string) (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal([]byte(snapshot), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task snapshot: %w", err)
	}
	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
