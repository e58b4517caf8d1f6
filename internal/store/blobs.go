package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

// PutBatch persists an attachment batch and its file blobs in one
// transaction. The owning outbox entry references the batch by id only.
func (s *Store) PutBatch(b *model.AttachmentBatch) error {
	if b.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	if len(b.Files) == 0 {
		return fmt.Errorf("batch %s has no files", b.ID)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO attachment_batches (id, task_id, created_at) VALUES (?, ?, ?)
	`, b.ID, b.TaskID, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
	}

	for i, f := range b.Files {
		_, err := tx.Exec(`
			INSERT INTO attachment_files (batch_id, position, name, data) VALUES (?, ?, ?, ?)
		`, b.ID, i, f.Name, f.Data)
		if err != nil {
			return fmt.Errorf("failed to insert file %s into batch %s: %w", f.Name, b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch %s: %w", b.ID, err)
	}

	return nil
}

// GetBatch loads a batch and its files.
// Returns ErrNotFound if the batch doesn't exist.
func (s *Store) GetBatch(id string) (*model.AttachmentBatch, error) {
	var (
		b         model.AttachmentBatch
		createdAt string
	)

	err := s.conn.QueryRow(`
		SELECT id, task_id, created_at FROM attachment_batches WHERE id = ?
	`, id).Scan(&b.ID, &b.TaskID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s: %w", id, err)
	}

	if b.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse batch created_at: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT name, data FROM attachment_files WHERE batch_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.BatchFile
		if err := rows.Scan(&f.Name, &f.Data); err != nil {
			return nil, fmt.Errorf("failed to scan batch file: %w", err)
		}
		b.Files = append(b.Files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch files: %w", err)
	}

	return &b, nil
}

// DeleteBatch removes a batch and its files (cascade).
// Returns nil if the batch doesn't exist (idempotent).
func (s *Store) DeleteBatch(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM attachment_batches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete batch %s: %w", id, err)
	}
	return nil
}

// BatchIDsForTask returns the ids of every queued batch owned by the task.
func (s *Store) BatchIDsForTask(taskID int64) ([]string, error) {
	rows, err := s.conn.Query(`SELECT id FROM attachment_batches WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan batch id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return ids, nil
}
