package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

func snapshotJSON(id int64, title string) []byte {
	snap := TaskSnapshot{
		ID:        id,
		Title:     title,
		Status:    "open",
		CreatorID: 1,
		CanEdit:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	data, _ := json.Marshal(snap)
	return data
}

func TestCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", got)
		}

		var req CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Title != "Inspect room 204" {
			t.Errorf("unexpected title %q", req.Title)
		}

		w.Write(snapshotJSON(42, req.Title))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret")
	snap, err := client.CreateTask(context.Background(), CreateTaskRequest{Title: "Inspect room 204"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if snap.ID != 42 {
		t.Errorf("expected server id 42, got %d", snap.ID)
	}
}

func TestConflictWithSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"state mismatch","task":` + string(snapshotJSON(9, "winner")) + `}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	_, err := client.UpdateTask(context.Background(), 9, UpdateTaskRequest{Title: "loser", Status: "open"})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Snapshot == nil || conflict.Snapshot.Title != "winner" {
		t.Errorf("expected winner snapshot, got %+v", conflict.Snapshot)
	}
}

func TestConflictWithoutSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"state mismatch"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	err := client.DeleteTask(context.Background(), 9)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Snapshot != nil {
		t.Errorf("expected no snapshot, got %+v", conflict.Snapshot)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "title is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	_, err := client.CreateTask(context.Background(), CreateTaskRequest{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", statusErr.Code)
	}
	if Classify(err) != ClassFatal {
		t.Error("400 should classify as fatal")
	}
}

func TestNotFoundMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	err := client.DeleteTask(context.Background(), 12345)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadAttachmentsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 2 {
			t.Fatalf("expected 2 files, got %d", len(files))
		}
		if files[0].Filename != "front.jpg" || files[1].Filename != "back.jpg" {
			t.Errorf("unexpected filenames: %s, %s", files[0].Filename, files[1].Filename)
		}
		w.Write(snapshotJSON(7, "with attachments"))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	snap, err := client.UploadAttachments(context.Background(), 7, []model.BatchFile{
		{Name: "front.jpg", Data: []byte("jpeg1")},
		{Name: "back.jpg", Data: []byte("jpeg2")},
	})
	if err != nil {
		t.Fatalf("UploadAttachments failed: %v", err)
	}
	if snap.ID != 7 {
		t.Errorf("expected task 7, got %d", snap.ID)
	}
}

func TestListTasksAssigneeFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("assignee"); got != "7" {
			t.Errorf("expected assignee=7, got %q", got)
		}
		w.Write([]byte(`[` + string(snapshotJSON(1, "a")) + `]`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	tasks, err := client.ListTasks(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}
}

func TestTransportErrorPassthrough(t *testing.T) {
	// Point at a closed server so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(srv.URL, "")
	_, err := client.GetTask(context.Background(), 1)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if Classify(err) != ClassTransient {
		t.Errorf("transport error should classify transient, got %v", Classify(err))
	}
}
