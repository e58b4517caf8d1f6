// Package gateway provides the REST client for the remote task authority.
//
// The gateway is the only thing the sync engine calls over the network.
// Every mutating call returns the full canonical task snapshot on success,
// including the server-computed capability flags. Failures are classified
// into transient / conflict / fatal by the Classify function; the engine
// acts on the class, never on raw status codes.
package gateway

import (
	"context"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

// TaskSnapshot is the server's canonical representation of a task.
// It never carries the client-local sync fields.
type TaskSnapshot struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Status      string             `json:"status"`
	StartsAt    *time.Time         `json:"starts_at,omitempty"`
	EndsAt      *time.Time         `json:"ends_at,omitempty"`
	CreatorID   int64              `json:"creator_id"`
	Assignees   []model.Assignee   `json:"assignees,omitempty"`
	Comments    []model.Comment    `json:"comments,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	CanEdit     bool               `json:"can_edit"`
	CanMarkDone bool               `json:"can_mark_done"`
	CanDelete   bool               `json:"can_delete"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ToModel converts the server snapshot into a cacheable task with sync
// state cleared.
func (s *TaskSnapshot) ToModel() *model.Task {
	return &model.Task{
		ID:          s.ID,
		Title:       s.Title,
		Status:      model.Status(s.Status),
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		CreatorID:   s.CreatorID,
		Assignees:   s.Assignees,
		Comments:    s.Comments,
		Attachments: s.Attachments,
		CanEdit:     s.CanEdit,
		CanMarkDone: s.CanMarkDone,
		CanDelete:   s.CanDelete,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// CreateTaskRequest is the body for task creation.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	AssigneeIDs []int64    `json:"assignee_ids,omitempty"`
}

// UpdateTaskRequest is the body for task updates. Full intended values,
// not a diff; the server applies them as the new state.
type UpdateTaskRequest struct {
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	AssigneeIDs []int64    `json:"assignee_ids,omitempty"`
}

// Client is the remote task gateway consumed by the sync engine.
//
// Implementations must return *StatusError for non-2xx responses,
// *ConflictError for the distinct conflict status, and transport errors
// unwrapped so net.Error checks work.
type Client interface {
	// ListTasks fetches tasks, optionally filtered by assignee
	// (assigneeID 0 means no filter).
	ListTasks(ctx context.Context, assigneeID int64) ([]*TaskSnapshot, error)

	// GetTask fetches one task.
	GetTask(ctx context.Context, id int64) (*TaskSnapshot, error)

	// CreateTask creates a task and returns the canonical snapshot with
	// the server-assigned id.
	CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskSnapshot, error)

	// UpdateTask replaces the mutable fields of a task.
	UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest) (*TaskSnapshot, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id int64) error

	// AddComment appends a comment and returns the updated snapshot.
	AddComment(ctx context.Context, taskID int64, body string) (*TaskSnapshot, error)

	// DeleteComment removes a comment and returns the updated snapshot.
	DeleteComment(ctx context.Context, taskID, commentID int64) (*TaskSnapshot, error)

	// UploadAttachments sends a batch of files as one multipart request
	// and returns the updated snapshot.
	UploadAttachments(ctx context.Context, taskID int64, files []model.BatchFile) (*TaskSnapshot, error)

	// DeleteAttachment removes an attachment and returns the updated snapshot.
	DeleteAttachment(ctx context.Context, taskID, attachmentID int64) (*TaskSnapshot, error)

	// ListAssignees fetches the assignable-user directory.
	ListAssignees(ctx context.Context) ([]model.Assignee, error)

	// Ping probes connectivity with a cheap request.
	Ping(ctx context.Context) error
}
