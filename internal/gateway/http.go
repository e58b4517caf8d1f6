package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taskpilot/taskpilot/internal/model"
)

// HTTPClient is the production Client implementation over net/http.
type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewHTTPClient creates a gateway client for the given base URL.
// The token, if non-empty, is sent as a bearer Authorization header.
//
// Example:
//
//	gw := gateway.NewHTTPClient("https://tasks.example.com", cfg.AuthToken)
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ListTasks implements Client.ListTasks.
func (c *HTTPClient) ListTasks(ctx context.Context, assigneeID int64) ([]*TaskSnapshot, error) {
	path := "/api/tasks"
	if assigneeID != 0 {
		path += "?assignee=" + url.QueryEscape(strconv.FormatInt(assigneeID, 10))
	}

	var tasks []*TaskSnapshot
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask implements Client.GetTask.
func (c *HTTPClient) GetTask(ctx context.Context, id int64) (*TaskSnapshot, error) {
	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodGet, taskPath(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask implements Client.CreateTask.
func (c *HTTPClient) CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskSnapshot, error) {
	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodPost, "/api/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask implements Client.UpdateTask.
func (c *HTTPClient) UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest) (*TaskSnapshot, error) {
	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodPut, taskPath(id), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask implements Client.DeleteTask.
func (c *HTTPClient) DeleteTask(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// AddComment implements Client.AddComment.
func (c *HTTPClient) AddComment(ctx context.Context, taskID int64, body string) (*TaskSnapshot, error) {
	req := struct {
		Body string `json:"body"`
	}{Body: body}

	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodPost, taskPath(taskID)+"/comments", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteComment implements Client.DeleteComment.
func (c *HTTPClient) DeleteComment(ctx context.Context, taskID, commentID int64) (*TaskSnapshot, error) {
	path := fmt.Sprintf("%s/comments/%d", taskPath(taskID), commentID)

	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UploadAttachments implements Client.UploadAttachments.
//
// Files are sent as one multipart/form-data request under repeated "files"
// fields, so the batch lands on the server atomically.
func (c *HTTPClient) UploadAttachments(ctx context.Context, taskID int64, files []model.BatchFile) (*TaskSnapshot, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write file %s: %w", f.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+taskPath(taskID)+"/attachments", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var task TaskSnapshot
	if err := c.decodeResponse(resp, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteAttachment implements Client.DeleteAttachment.
func (c *HTTPClient) DeleteAttachment(ctx context.Context, taskID, attachmentID int64) (*TaskSnapshot, error) {
	path := fmt.Sprintf("%s/attachments/%d", taskPath(taskID), attachmentID)

	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListAssignees implements Client.ListAssignees.
func (c *HTTPClient) ListAssignees(ctx context.Context) ([]model.Assignee, error) {
	var assignees []model.Assignee
	if err := c.doJSON(ctx, http.MethodGet, "/api/assignees", nil, &assignees); err != nil {
		return nil, err
	}
	return assignees, nil
}

// Ping implements Client.Ping.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil)
}

// doJSON performs a JSON request/response round trip.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Transport errors pass through unwrapped so net.Error
		// classification works upstream.
		return err
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, out)
}

// decodeResponse maps the status code to the error taxonomy and decodes
// successful bodies into out (which may be nil).
func (c *HTTPClient) decodeResponse(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		// The conflict body may embed the winner's snapshot under "task".
		// Its absence is a valid, handled case.
		var conflictBody struct {
			Task *TaskSnapshot `json:"task"`
		}
		_ = json.Unmarshal(raw, &conflictBody)
		return &ConflictError{Snapshot: conflictBody.Task}

	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, string(raw))

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// setAuth attaches the bearer token when configured.
func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}
