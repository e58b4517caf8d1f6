// Package model provides the data structures shared by the cache, outbox,
// gateway, and sync engine.
//
// Tasks follow a signed-id convention: positive ids are server-canonical,
// negative ids are client-local temporaries assigned at optimistic-create
// time. A negative id is rewritten to the server id during reconciliation
// and is never reused.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusOpen is the default state for new tasks.
	StatusOpen Status = "open"
	// StatusDone marks a completed task.
	StatusDone Status = "done"
)

// SyncErrorConflict is the sync_error tag set when a mutation lost a
// remote-wins conflict. Any other non-empty value is a free-form error tag.
const SyncErrorConflict = "conflict"

// Task represents one unit of work as cached locally.
//
// IsPending and SyncError are local-only fields: they are never sent to the
// gateway and are not part of the server's canonical snapshot.
type Task struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`

	Status   Status     `json:"status"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	CreatorID int64      `json:"creator_id"`
	Assignees []Assignee `json:"assignees,omitempty"`

	Comments    []Comment    `json:"comments,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Server-computed capability flags.
	CanEdit     bool `json:"can_edit"`
	CanMarkDone bool `json:"can_mark_done"`
	CanDelete   bool `json:"can_delete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Local-only sync state.
	IsPending bool   `json:"is_pending,omitempty"`
	SyncError string `json:"sync_error,omitempty"`
}

// Assignee is a reference to an assignable user plus its last known
// human-readable label.
type Assignee struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Comment belongs to exactly one task. A negative id marks a locally created
// comment whose add operation has not been confirmed yet.
type Comment struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`

	// Local-only sync state, mirrored per comment so a failed comment-add
	// is visible on the specific comment rather than the whole task.
	Pending   bool   `json:"pending,omitempty"`
	SyncError string `json:"sync_error,omitempty"`
}

// Attachment is a server-confirmed file attached to a task. Queued uploads
// live in the attachment batch store until replay confirms them.
type Attachment struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsLocal reports whether the task has never been confirmed by the server.
func (t *Task) IsLocal() bool {
	return t.ID < 0
}

// IsLocal reports whether the comment has never been confirmed by the server.
func (c *Comment) IsLocal() bool {
	return c.ID < 0
}

// Validate checks the fields the engine relies on.
func (t *Task) Validate() error {
	if t.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.Status != StatusOpen && t.Status != StatusDone {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.StartsAt != nil && t.EndsAt != nil && t.EndsAt.Before(*t.StartsAt) {
		return fmt.Errorf("ends_at is before starts_at")
	}
	return nil
}

// Clone returns a deep copy of the task. The engine clones before building
// an optimistic snapshot so a later rollback can restore the original.
func (t *Task) Clone() *Task {
	cp := *t
	if t.StartsAt != nil {
		v := *t.StartsAt
		cp.StartsAt = &v
	}
	if t.EndsAt != nil {
		v := *t.EndsAt
		cp.EndsAt = &v
	}
	cp.Assignees = append([]Assignee(nil), t.Assignees...)
	cp.Comments = append([]Comment(nil), t.Comments...)
	cp.Attachments = append([]Attachment(nil), t.Attachments...)
	return &cp
}

// FindComment returns a pointer into the task's comment slice, or nil.
func (t *Task) FindComment(commentID int64) *Comment {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			return &t.Comments[i]
		}
	}
	return nil
}

// RemoveComment deletes the comment with the given id from the task's
// comment slice. Returns true if a comment was removed.
func (t *Task) RemoveComment(commentID int64) bool {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			t.Comments = append(t.Comments[:i], t.Comments[i+1:]...)
			return true
		}
	}
	return false
}
