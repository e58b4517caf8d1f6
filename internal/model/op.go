package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpKind identifies the type of a queued mutation. Each kind has a matching
// payload struct; the outbox stores the payload as a JSON envelope so new
// kinds can be added without schema changes.
type OpKind string

const (
	OpCreate           OpKind = "create"
	OpUpdate           OpKind = "update"
	OpDelete           OpKind = "delete"
	OpCommentAdd       OpKind = "comment_add"
	OpCommentDelete    OpKind = "comment_delete"
	OpAttachmentAdd    OpKind = "attachment_add"
	OpAttachmentDelete OpKind = "attachment_delete"
)

// Valid reports whether the kind is one of the known operation kinds.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete, OpCommentAdd, OpCommentDelete,
		OpAttachmentAdd, OpAttachmentDelete:
		return true
	}
	return false
}

// CreatePayload is the payload for OpCreate. The comment/attachment lists
// are intentionally absent: dependent operations queue separately so they
// replay against the reconciled id.
type CreatePayload struct {
	Title       string     `json:"title"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	AssigneeIDs []int64    `json:"assignee_ids,omitempty"`
}

// UpdatePayload carries the full intended field values, not a diff. The
// optimistic snapshot and the replayed request are built from the same
// payload, so they cannot drift apart.
type UpdatePayload struct {
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	AssigneeIDs []int64    `json:"assignee_ids,omitempty"`
}

// DeletePayload is the (empty) payload for OpDelete.
type DeletePayload struct{}

// CommentAddPayload is the payload for OpCommentAdd. CommentID is the local
// negative id so replay can mirror failures onto the specific comment.
type CommentAddPayload struct {
	CommentID int64  `json:"comment_id"`
	Body      string `json:"body"`
}

// CommentDeletePayload is the payload for OpCommentDelete.
type CommentDeletePayload struct {
	CommentID int64 `json:"comment_id"`
}

// AttachmentAddPayload references a queued attachment batch by id only.
// File bytes never travel through the outbox.
type AttachmentAddPayload struct {
	BatchID   string `json:"batch_id"`
	FileCount int    `json:"file_count"`
}

// AttachmentDeletePayload is the payload for OpAttachmentDelete.
type AttachmentDeletePayload struct {
	AttachmentID int64 `json:"attachment_id"`
}

// OutboxEntry is one pending mutation awaiting replay.
type OutboxEntry struct {
	ID          string          `json:"id"`
	Op          OpKind          `json:"op"`
	TaskID      int64           `json:"task_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	RetryCount  int             `json:"retry_count"`
	NextRetryAt time.Time       `json:"next_retry_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// Decode unmarshals the entry's payload into the kind-specific struct.
func (e *OutboxEntry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload for entry %s: %w", e.Op, e.ID, err)
	}
	return nil
}

// EncodePayload marshals a kind-specific payload for storage in an entry.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DeadLetter is an outbox entry that exhausted its retry budget. It keeps
// the original entry id so a retried letter can be traced back in logs.
type DeadLetter struct {
	ID         string          `json:"id"`
	Op         OpKind          `json:"op"`
	TaskID     int64           `json:"task_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	Reason     string          `json:"reason"`
	FailedAt   time.Time       `json:"failed_at"`
}

// AttachmentBatch is a set of files queued for upload, persisted in the
// blob store and referenced from its outbox entry by id only.
type AttachmentBatch struct {
	ID        string      `json:"id"`
	TaskID    int64       `json:"task_id"`
	CreatedAt time.Time   `json:"created_at"`
	Files     []BatchFile `json:"files"`
}

// BatchFile is one file inside an attachment batch.
type BatchFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}
