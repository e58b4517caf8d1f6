package model

import (
	"testing"
	"time"
)

func testTask() *Task {
	now := time.Now()
	starts := now.Add(time.Hour)
	return &Task{
		ID:        -1,
		Title:     "Inspect room 204",
		Status:    StatusOpen,
		StartsAt:  &starts,
		CreatorID: 3,
		Assignees: []Assignee{{ID: 7, Name: "Dana"}},
		Comments:  []Comment{{ID: -2, Body: "bring ladder", Pending: true}},
		CreatedAt: now,
		UpdatedAt: now,
		IsPending: true,
	}
}

func TestTaskValidate(t *testing.T) {
	task := testTask()
	if err := task.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	bad := testTask()
	bad.Status = "archived"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	bad = testTask()
	ends := bad.StartsAt.Add(-time.Minute)
	bad.EndsAt = &ends
	if err := bad.Validate(); err == nil {
		t.Error("expected error for ends_at before starts_at")
	}
}

func TestTaskCloneIsIndependent(t *testing.T) {
	orig := testTask()
	cp := orig.Clone()

	cp.Title = "changed"
	cp.Comments[0].Body = "changed"
	cp.Assignees[0].Name = "changed"
	*cp.StartsAt = cp.StartsAt.Add(24 * time.Hour)

	if orig.Title != "Inspect room 204" {
		t.Error("clone shares Title with original")
	}
	if orig.Comments[0].Body != "bring ladder" {
		t.Error("clone shares comment slice with original")
	}
	if orig.Assignees[0].Name != "Dana" {
		t.Error("clone shares assignee slice with original")
	}
	if !orig.StartsAt.Before(*cp.StartsAt) {
		t.Error("clone shares StartsAt pointer with original")
	}
}

func TestRemoveComment(t *testing.T) {
	task := testTask()
	if !task.RemoveComment(-2) {
		t.Fatal("expected comment -2 to be removed")
	}
	if task.RemoveComment(-2) {
		t.Error("second removal should report false")
	}
	if len(task.Comments) != 0 {
		t.Errorf("expected 0 comments, got %d", len(task.Comments))
	}
}

func TestIsLocal(t *testing.T) {
	task := testTask()
	if !task.IsLocal() {
		t.Error("negative id task should be local")
	}
	task.ID = 42
	if task.IsLocal() {
		t.Error("positive id task should not be local")
	}
}

func TestOutboxEntryDecode(t *testing.T) {
	payload, err := EncodePayload(CommentAddPayload{CommentID: -5, Body: "done"})
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}

	entry := OutboxEntry{ID: "e1", Op: OpCommentAdd, TaskID: -1, Payload: payload}

	var got CommentAddPayload
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.CommentID != -5 || got.Body != "done" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestOpKindValid(t *testing.T) {
	if !OpAttachmentAdd.Valid() {
		t.Error("attachment_add should be valid")
	}
	if OpKind("rename").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
