// Package engine implements the offline-first mutation synchronization
// engine.
//
// Every mutating operation follows the same contract: build an optimistic
// snapshot, persist it to the local cache immediately, then either confirm
// it against the remote gateway, queue it in the outbox for later replay
// (transient failure or known-offline), or roll it back (fatal rejection).
// The replay loop drains the outbox in creation order with capped
// exponential backoff and moves entries that exhaust their retry budget
// into the dead-letter archive.
//
// The engine is the only writer of the outbox and task cache. Replay is
// single-flight: wake triggers may fire as often as they like, a pass that
// is already running absorbs them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/gateway"
	"github.com/taskpilot/taskpilot/internal/logging"
	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/store"
)

// ErrNotCached is returned when an operation targets a task that is not in
// the local cache.
var ErrNotCached = errors.New("task not in local cache")

// Config tunes the engine's retry behavior.
type Config struct {
	// BackoffBase is the delay after the first failed replay attempt.
	BackoffBase time.Duration

	// BackoffMax caps the exponential schedule.
	BackoffMax time.Duration

	// MaxAttempts is the retry ceiling; an entry failing transiently this
	// many times is dead-lettered.
	MaxAttempts int

	// Classifier maps gateway errors to transient/conflict/fatal.
	// Nil means gateway.Classify.
	Classifier gateway.Classifier

	// Logger for engine activity. Nil means a stderr default.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase: 10 * time.Second,
		BackoffMax:  10 * time.Minute,
		MaxAttempts: 8,
	}
}

// Engine orchestrates optimistic mutations and outbox replay.
type Engine struct {
	store  *store.Store
	gw     gateway.Client
	cfg    Config
	logger *log.Logger

	// replayMu is the single-flight guard: only one replay pass runs at a
	// time, concurrent triggers are no-ops.
	replayMu sync.Mutex

	online atomic.Bool
	closed atomic.Bool

	timerMu  sync.Mutex
	dueTimer *time.Timer
}

// New creates an engine over the given store and gateway.
func New(st *store.Store, gw gateway.Client, cfg Config) *Engine {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 10 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = 10 * time.Minute
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 8
	}
	if cfg.Classifier == nil {
		cfg.Classifier = gateway.Classify
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("engine")
	}

	e := &Engine{
		store:  st,
		gw:     gw,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	e.online.Store(true)
	return e
}

// Close stops the due timer, rejects further kicks, and waits for an
// in-flight replay pass, so the store can be closed safely afterwards.
// Pending outbox state stays durable.
func (e *Engine) Close() {
	e.closed.Store(true)

	e.timerMu.Lock()
	if e.dueTimer != nil {
		e.dueTimer.Stop()
		e.dueTimer = nil
	}
	e.timerMu.Unlock()

	// Taking and releasing the single-flight lock is the wait: once it is
	// held here, no kicked goroutine can still be touching the store.
	e.replayMu.Lock()
	e.replayMu.Unlock()
}

// SetOnline records the last known connectivity state. Replay passes exit
// immediately while offline; mutations queue instead of calling out.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if !was && online {
		e.logger.Printf("connectivity restored")
	}
}

// Online returns the last known connectivity state.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Kick requests a non-blocking replay pass. Safe to call from any trigger
// at any rate; overlapping kicks collapse into the running pass. A kick
// after Close is a no-op.
func (e *Engine) Kick() {
	if e.closed.Load() {
		return
	}
	go func() {
		if err := e.Replay(context.Background(), false); err != nil {
			e.logger.Printf("replay pass failed: %v", err)
		}
	}()
}

// List returns the cached tasks. When refresh is true and the client is
// online, the cache is first hydrated from the gateway; hydration failures
// degrade to the cached view.
func (e *Engine) List(ctx context.Context, refresh bool) ([]*model.Task, error) {
	if refresh && e.Online() {
		if err := e.Refresh(ctx); err != nil {
			e.logger.Printf("refresh failed, serving cache: %v", err)
		}
	}
	return e.store.ListTasks()
}

// Get returns one task from the cache, falling back to the gateway for
// uncached server-side tasks.
func (e *Engine) Get(ctx context.Context, id int64) (*model.Task, error) {
	task, err := e.store.GetTask(id)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, store.ErrNotFound) || id < 0 || !e.Online() {
		return nil, err
	}

	snap, gwErr := e.gw.GetTask(ctx, id)
	if gwErr != nil {
		return nil, fmt.Errorf("task %d not cached and fetch failed: %w", id, gwErr)
	}

	task = snap.ToModel()
	if err := e.store.PutTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Refresh hydrates the task cache and assignee directory from the gateway.
// Tasks with unconfirmed local mutations are left untouched so optimistic
// state is never clobbered by a stale server view.
func (e *Engine) Refresh(ctx context.Context) error {
	snaps, err := e.gw.ListTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list remote tasks: %w", err)
	}

	for _, snap := range snaps {
		cached, err := e.store.GetTask(snap.ID)
		if err == nil && (cached.IsPending || cached.SyncError != "") {
			continue
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := e.store.PutTask(snap.ToModel()); err != nil {
			return err
		}
	}

	assignees, err := e.gw.ListAssignees(ctx)
	if err != nil {
		e.logger.Printf("failed to refresh assignee directory: %v", err)
		return nil
	}
	return e.store.PutAssignees(assignees)
}

// ListAssignees returns the assignable-user directory, refreshed from the
// gateway when reachable, else the cached copy.
func (e *Engine) ListAssignees(ctx context.Context) ([]model.Assignee, error) {
	if e.Online() {
		if assignees, err := e.gw.ListAssignees(ctx); err == nil {
			if err := e.store.PutAssignees(assignees); err != nil {
				return nil, err
			}
			return assignees, nil
		}
	}
	return e.store.ListAssignees()
}

// Create performs an optimistic task creation.
//
// The returned task carries the local negative id until the create is
// confirmed; on direct success it carries the canonical server id.
func (e *Engine) Create(ctx context.Context, req model.CreatePayload) (*model.Task, error) {
	localID, err := e.store.NextLocalID(store.ScopeTask)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	optimistic := &model.Task{
		ID:          localID,
		Title:       req.Title,
		Status:      model.StatusOpen,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Assignees:   e.resolveAssignees(req.AssigneeIDs),
		CreatorID:   0,
		CanEdit:     true,
		CanMarkDone: true,
		CanDelete:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsPending:   true,
	}

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	if !e.Online() {
		if err := e.enqueue(model.OpCreate, localID, req); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.CreateTask(ctx, gateway.CreateTaskRequest(req))
	if gwErr == nil {
		canonical := snap.ToModel()
		if err := e.store.ReplaceTaskID(localID, canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	switch e.cfg.Classifier(gwErr) {
	case gateway.ClassTransient:
		e.logger.Printf("create queued after transient failure: %v", gwErr)
		if err := e.enqueue(model.OpCreate, localID, req); err != nil {
			return nil, err
		}
		e.Kick()
		return optimistic, nil
	default:
		// A create has no remote state to conflict with; conflict and
		// fatal both roll back.
		if err := e.store.DeleteTask(localID); err != nil {
			e.logger.Printf("rollback of task %d failed: %v", localID, err)
		}
		return nil, gwErr
	}
}

// Update performs an optimistic task update. The payload carries the full
// intended field values.
func (e *Engine) Update(ctx context.Context, taskID int64, req model.UpdatePayload) (*model.Task, error) {
	prior, err := e.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("task %d: %w", taskID, ErrNotCached)
		}
		return nil, err
	}

	optimistic := prior.Clone()
	optimistic.Title = req.Title
	optimistic.Status = req.Status
	optimistic.StartsAt = req.StartsAt
	optimistic.EndsAt = req.EndsAt
	optimistic.Assignees = e.resolveAssignees(req.AssigneeIDs)
	optimistic.UpdatedAt = time.Now()
	optimistic.IsPending = true
	optimistic.SyncError = ""

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return nil, err
	} else if mustQueue {
		if err := e.enqueue(model.OpUpdate, taskID, req); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.UpdateTask(ctx, taskID, updateRequest(req))
	if gwErr == nil {
		canonical := snap.ToModel()
		if err := e.store.PutTask(canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	return e.resolveMutationFailure(taskID, prior, gwErr, model.OpUpdate, req)
}

// Remove performs an optimistic task deletion.
//
// Deleting a never-synced task is purely local: its queued entries and
// attachment batches are cancelled and no network call is ever made.
func (e *Engine) Remove(ctx context.Context, taskID int64) error {
	if taskID < 0 {
		return e.purgeLocalTask(taskID)
	}

	prior, err := e.store.GetTask(taskID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := e.store.DeleteTask(taskID); err != nil {
		return err
	}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return err
	} else if mustQueue {
		return e.enqueue(model.OpDelete, taskID, model.DeletePayload{})
	}

	gwErr := e.gw.DeleteTask(ctx, taskID)
	if gwErr == nil || errors.Is(gwErr, gateway.ErrNotFound) {
		return nil
	}

	switch e.cfg.Classifier(gwErr) {
	case gateway.ClassTransient:
		e.logger.Printf("delete of task %d queued after transient failure: %v", taskID, gwErr)
		if err := e.enqueue(model.OpDelete, taskID, model.DeletePayload{}); err != nil {
			return err
		}
		e.Kick()
		return nil
	case gateway.ClassConflict:
		// Remote wins: the task still exists server-side in a newer state.
		e.adoptConflict(taskID, gwErr, true)
		return nil
	default:
		if prior != nil {
			if err := e.store.PutTask(prior); err != nil {
				e.logger.Printf("rollback of task %d failed: %v", taskID, err)
			}
		}
		return gwErr
	}
}

// AddComment performs an optimistic comment addition.
func (e *Engine) AddComment(ctx context.Context, taskID int64, body string) (*model.Task, error) {
	prior, err := e.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("task %d: %w", taskID, ErrNotCached)
		}
		return nil, err
	}

	commentID, err := e.store.NextLocalID(store.ScopeComment)
	if err != nil {
		return nil, err
	}

	optimistic := prior.Clone()
	optimistic.Comments = append(optimistic.Comments, model.Comment{
		ID:        commentID,
		Body:      body,
		CreatedAt: time.Now(),
		Pending:   true,
	})
	optimistic.IsPending = true
	optimistic.UpdatedAt = time.Now()

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	payload := model.CommentAddPayload{CommentID: commentID, Body: body}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return nil, err
	} else if mustQueue {
		if err := e.enqueue(model.OpCommentAdd, taskID, payload); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.AddComment(ctx, taskID, body)
	if gwErr == nil {
		canonical := snap.ToModel()
		if err := e.store.PutTask(canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	return e.resolveMutationFailure(taskID, prior, gwErr, model.OpCommentAdd, payload)
}

// RemoveComment performs an optimistic comment deletion.
//
// A comment that was never confirmed (negative id) is deleted purely
// locally: its queued add operation is cancelled instead of queueing a
// delete.
func (e *Engine) RemoveComment(ctx context.Context, taskID, commentID int64) (*model.Task, error) {
	prior, err := e.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("task %d: %w", taskID, ErrNotCached)
		}
		return nil, err
	}

	if commentID < 0 {
		return e.cancelQueuedComment(prior, commentID)
	}

	optimistic := prior.Clone()
	if !optimistic.RemoveComment(commentID) {
		return nil, fmt.Errorf("comment %d not found on task %d", commentID, taskID)
	}
	optimistic.IsPending = true
	optimistic.UpdatedAt = time.Now()

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	payload := model.CommentDeletePayload{CommentID: commentID}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return nil, err
	} else if mustQueue {
		if err := e.enqueue(model.OpCommentDelete, taskID, payload); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.DeleteComment(ctx, taskID, commentID)
	if gwErr == nil || errors.Is(gwErr, gateway.ErrNotFound) {
		if gwErr != nil {
			// Already gone server-side; the optimistic state is correct.
			optimistic.IsPending = false
			if err := e.store.PutTask(optimistic); err != nil {
				return nil, err
			}
			return optimistic, nil
		}
		canonical := snap.ToModel()
		if err := e.store.PutTask(canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	return e.resolveMutationFailure(taskID, prior, gwErr, model.OpCommentDelete, payload)
}

// UploadAttachments performs an optimistic attachment upload. When the
// upload cannot run now (unsynced task, offline, ordering behind queued
// entries, transient failure) the files are persisted as an attachment
// batch and only the batch id travels through the outbox.
func (e *Engine) UploadAttachments(ctx context.Context, taskID int64, files []model.BatchFile) (*model.Task, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}

	prior, err := e.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("task %d: %w", taskID, ErrNotCached)
		}
		return nil, err
	}

	optimistic := prior.Clone()
	optimistic.IsPending = true
	optimistic.UpdatedAt = time.Now()

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return nil, err
	} else if mustQueue {
		if err := e.queueBatch(taskID, files); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.UploadAttachments(ctx, taskID, files)
	if gwErr == nil {
		canonical := snap.ToModel()
		if err := e.store.PutTask(canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	switch e.cfg.Classifier(gwErr) {
	case gateway.ClassTransient:
		e.logger.Printf("attachment upload for task %d queued after transient failure: %v", taskID, gwErr)
		if err := e.queueBatch(taskID, files); err != nil {
			return nil, err
		}
		e.Kick()
		return optimistic, nil
	case gateway.ClassConflict:
		return e.adoptConflict(taskID, gwErr, false), gwErr
	default:
		if err := e.store.PutTask(prior); err != nil {
			e.logger.Printf("rollback of task %d failed: %v", taskID, err)
		}
		return nil, gwErr
	}
}

// RemoveAttachment performs an optimistic attachment deletion.
func (e *Engine) RemoveAttachment(ctx context.Context, taskID, attachmentID int64) (*model.Task, error) {
	prior, err := e.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("task %d: %w", taskID, ErrNotCached)
		}
		return nil, err
	}

	optimistic := prior.Clone()
	for i, a := range optimistic.Attachments {
		if a.ID == attachmentID {
			optimistic.Attachments = append(optimistic.Attachments[:i], optimistic.Attachments[i+1:]...)
			break
		}
	}
	optimistic.IsPending = true
	optimistic.UpdatedAt = time.Now()

	if err := e.store.PutTask(optimistic); err != nil {
		return nil, err
	}

	payload := model.AttachmentDeletePayload{AttachmentID: attachmentID}

	if mustQueue, err := e.mustQueue(taskID); err != nil {
		return nil, err
	} else if mustQueue {
		if err := e.enqueue(model.OpAttachmentDelete, taskID, payload); err != nil {
			return nil, err
		}
		return optimistic, nil
	}

	snap, gwErr := e.gw.DeleteAttachment(ctx, taskID, attachmentID)
	if gwErr == nil || errors.Is(gwErr, gateway.ErrNotFound) {
		if gwErr != nil {
			optimistic.IsPending = false
			if err := e.store.PutTask(optimistic); err != nil {
				return nil, err
			}
			return optimistic, nil
		}
		canonical := snap.ToModel()
		if err := e.store.PutTask(canonical); err != nil {
			return nil, err
		}
		return canonical, nil
	}

	return e.resolveMutationFailure(taskID, prior, gwErr, model.OpAttachmentDelete, payload)
}

// mustQueue reports whether a mutation on the task has to go through the
// outbox instead of the network: the task is an unsynced create, the
// client is offline, or older entries for the task are still queued
// (per-task FIFO would be violated by overtaking them).
func (e *Engine) mustQueue(taskID int64) (bool, error) {
	if taskID < 0 || !e.Online() {
		return true, nil
	}
	has, err := e.store.HasEntriesForTask(taskID)
	if err != nil {
		return false, err
	}
	return has, nil
}

// enqueue appends an outbox entry due immediately and re-arms the due timer.
func (e *Engine) enqueue(op model.OpKind, taskID int64, payload any) error {
	raw, err := model.EncodePayload(payload)
	if err != nil {
		return err
	}

	now := time.Now()
	entry := &model.OutboxEntry{
		ID:          uuid.NewString(),
		Op:          op,
		TaskID:      taskID,
		Payload:     raw,
		CreatedAt:   now,
		NextRetryAt: now,
	}

	if err := e.store.AddEntry(entry); err != nil {
		return err
	}

	e.armDueTimer()
	return nil
}

// queueBatch persists the files as an attachment batch and enqueues the
// control-channel entry referencing it.
func (e *Engine) queueBatch(taskID int64, files []model.BatchFile) error {
	batch := &model.AttachmentBatch{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		CreatedAt: time.Now(),
		Files:     files,
	}

	if err := e.store.PutBatch(batch); err != nil {
		return err
	}

	return e.enqueue(model.OpAttachmentAdd, taskID, model.AttachmentAddPayload{
		BatchID:   batch.ID,
		FileCount: len(files),
	})
}

// purgeLocalTask deletes a never-synced task: every queued entry, every
// queued attachment batch, and the cache row, with no network involvement.
func (e *Engine) purgeLocalTask(taskID int64) error {
	if err := e.store.DeleteEntriesForTask(taskID); err != nil {
		return err
	}

	batchIDs, err := e.store.BatchIDsForTask(taskID)
	if err != nil {
		return err
	}
	for _, id := range batchIDs {
		if err := e.store.DeleteBatch(id); err != nil {
			return err
		}
	}

	if err := e.store.DeleteTask(taskID); err != nil {
		return err
	}

	e.armDueTimer()
	e.logger.Printf("purged never-synced task %d (%d queued batches cancelled)", taskID, len(batchIDs))
	return nil
}

// cancelQueuedComment removes an unconfirmed comment by cancelling its
// queued add entry rather than queueing a delete.
func (e *Engine) cancelQueuedComment(task *model.Task, commentID int64) (*model.Task, error) {
	entries, err := e.store.EntriesForTask(task.ID)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Op != model.OpCommentAdd {
			continue
		}
		var payload model.CommentAddPayload
		if err := entry.Decode(&payload); err != nil {
			return nil, err
		}
		if payload.CommentID != commentID {
			continue
		}
		if err := e.store.DeleteEntry(entry.ID); err != nil {
			return nil, err
		}
		break
	}

	updated := task.Clone()
	updated.RemoveComment(commentID)

	remaining, err := e.store.HasEntriesForTask(task.ID)
	if err != nil {
		return nil, err
	}
	updated.IsPending = remaining || updated.IsLocal()

	if err := e.store.PutTask(updated); err != nil {
		return nil, err
	}

	e.armDueTimer()
	return updated, nil
}

// resolveMutationFailure handles a failed direct gateway call for
// snapshot-returning operations: transient enqueues and keeps the
// optimistic state, conflict adopts the remote winner, fatal rolls back
// and surfaces the error to the caller.
func (e *Engine) resolveMutationFailure(taskID int64, prior *model.Task, gwErr error, op model.OpKind, payload any) (*model.Task, error) {
	switch e.cfg.Classifier(gwErr) {
	case gateway.ClassTransient:
		e.logger.Printf("%s on task %d queued after transient failure: %v", op, taskID, gwErr)
		if err := e.enqueue(op, taskID, payload); err != nil {
			return nil, err
		}
		e.Kick()
		return e.store.GetTask(taskID)
	case gateway.ClassConflict:
		return e.adoptConflict(taskID, gwErr, false), gwErr
	default:
		if err := e.store.PutTask(prior); err != nil {
			e.logger.Printf("rollback of task %d failed: %v", taskID, err)
		}
		return nil, gwErr
	}
}

// adoptConflict applies remote-wins resolution: the server snapshot (when
// supplied) replaces the local state, marked with the conflict tag. With
// no snapshot the cached entity keeps its shape but gains the marker —
// except for a lost delete with a snapshot, where restore is the adoption.
func (e *Engine) adoptConflict(taskID int64, gwErr error, deleted bool) *model.Task {
	var conflict *gateway.ConflictError
	if errors.As(gwErr, &conflict) && conflict.Snapshot != nil {
		adopted := conflict.Snapshot.ToModel()
		adopted.SyncError = model.SyncErrorConflict
		if err := e.store.PutTask(adopted); err != nil {
			e.logger.Printf("failed to adopt conflict snapshot for task %d: %v", taskID, err)
			return nil
		}
		return adopted
	}

	if deleted {
		// Lost delete with no snapshot: nothing locally to mark.
		return nil
	}

	cached, err := e.store.GetTask(taskID)
	if err != nil {
		return nil
	}
	cached.IsPending = false
	cached.SyncError = model.SyncErrorConflict
	if err := e.store.PutTask(cached); err != nil {
		e.logger.Printf("failed to mark conflict on task %d: %v", taskID, err)
	}
	return cached
}

// updateRequest maps the stored payload onto the gateway request body.
func updateRequest(p model.UpdatePayload) gateway.UpdateTaskRequest {
	return gateway.UpdateTaskRequest{
		Title:       p.Title,
		Status:      string(p.Status),
		StartsAt:    p.StartsAt,
		EndsAt:      p.EndsAt,
		AssigneeIDs: p.AssigneeIDs,
	}
}

// resolveAssignees maps assignee ids to labeled references using the
// cached directory. Unknown ids get a placeholder label; resolution never
// blocks the optimistic write.
func (e *Engine) resolveAssignees(ids []int64) []model.Assignee {
	if len(ids) == 0 {
		return nil
	}

	assignees := make([]model.Assignee, 0, len(ids))
	for _, id := range ids {
		if a, err := e.store.GetAssignee(id); err == nil {
			assignees = append(assignees, *a)
			continue
		}
		assignees = append(assignees, model.Assignee{ID: id, Name: fmt.Sprintf("User %d", id)})
	}
	return assignees
}
