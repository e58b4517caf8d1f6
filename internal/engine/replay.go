package engine

import (
	"context"
	"errors"
	"time"

	"github.com/taskpilot/taskpilot/internal/gateway"
	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/store"
)

// entryResult is the outcome of replaying one outbox entry.
type entryResult int

const (
	// entryDone means the entry left the queue (confirmed, conflicted, or
	// dead-lettered) and the pass continues.
	entryDone entryResult = iota

	// entryBlocked means the entry cannot run yet (dependent on an
	// unconfirmed create) and is skipped for the rest of this pass at no
	// retry cost.
	entryBlocked

	// entryDeferred means the entry was rescheduled after a failed attempt
	// and is skipped for the rest of this pass, so a forced pass cannot
	// burn its whole retry budget in one go.
	entryDeferred

	// passStop means the server looks unreachable and the whole pass ends;
	// the backoff schedule decides when to try again.
	passStop
)

// ForceSyncNow runs a replay pass that ignores both backoff eligibility and
// the last known connectivity state.
func (e *Engine) ForceSyncNow(ctx context.Context) error {
	return e.Replay(ctx, true)
}

// Replay drains the outbox, oldest entry first. At most one pass runs at a
// time; a call that finds a pass already running returns immediately.
//
// A normal pass replays only entries whose next-eligible time has elapsed
// and exits early while offline. A forced pass considers every entry.
func (e *Engine) Replay(ctx context.Context, force bool) error {
	if !e.replayMu.TryLock() {
		return nil
	}
	defer e.replayMu.Unlock()

	if e.closed.Load() {
		return nil
	}
	defer e.armDueTimer()

	if !force && !e.Online() {
		return nil
	}

	// Entries skipped this pass (blocked behind an unconfirmed create).
	// Re-read the queue after every entry: a confirmed create rewrites the
	// task ids of its dependents, so yesterday's blocked entry may be
	// runnable by the time we loop around.
	skipped := make(map[string]bool)
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			entries []*model.OutboxEntry
			err     error
		)
		if force {
			entries, err = e.store.AllEntries()
		} else {
			entries, err = e.store.DueEntries(time.Now())
		}
		if err != nil {
			return err
		}

		var entry *model.OutboxEntry
		for _, cand := range entries {
			if !skipped[cand.ID] {
				entry = cand
				break
			}
		}
		if entry == nil {
			break
		}

		res, err := e.replayEntry(ctx, entry)
		if err != nil {
			return err
		}

		switch res {
		case entryBlocked, entryDeferred:
			skipped[entry.ID] = true
		case passStop:
			if processed > 0 {
				e.logger.Printf("replay pass stopped after %d entries", processed)
			}
			return nil
		case entryDone:
			processed++
		}
	}

	if processed > 0 {
		e.logger.Printf("replay pass complete: %d entries processed", processed)
	}
	return nil
}

// replayEntry replays one entry against the gateway and applies the
// outcome. Returned errors are local storage failures only; gateway
// failures are absorbed into the entry's retry state.
func (e *Engine) replayEntry(ctx context.Context, entry *model.OutboxEntry) (entryResult, error) {
	if entry.TaskID < 0 && entry.Op != model.OpCreate {
		// Dependent operation whose create has not confirmed yet. Keep it
		// due so the next pass retries it immediately after reconciliation,
		// and charge nothing against its retry budget.
		err := e.store.RescheduleEntry(entry.ID, entry.RetryCount, time.Now(), "waiting for task creation")
		if err != nil {
			return 0, err
		}
		return entryBlocked, nil
	}

	snap, gone, gwErr := e.callGateway(ctx, entry)
	if gwErr == nil {
		return entryDone, e.confirmEntry(entry, snap, gone)
	}

	switch e.cfg.Classifier(gwErr) {
	case gateway.ClassConflict:
		return entryDone, e.resolveReplayConflict(entry, gwErr)

	case gateway.ClassTransient:
		retries := entry.RetryCount + 1
		if retries >= e.cfg.MaxAttempts {
			return entryDone, e.deadLetterEntry(entry, retries, gwErr)
		}

		delay := backoffDelay(e.cfg.BackoffBase, e.cfg.BackoffMax, retries)
		err := e.store.RescheduleEntry(entry.ID, retries, time.Now().Add(delay), gwErr.Error())
		if err != nil {
			return 0, err
		}
		e.logger.Printf("%s on task %d failed transiently (attempt %d/%d), next try in %s: %v",
			entry.Op, entry.TaskID, retries, e.cfg.MaxAttempts, delay, gwErr)
		// One transient failure means the server is unreachable for every
		// entry behind this one too.
		return passStop, nil

	default:
		// Fatal during replay: the caller is long gone, so the rejection
		// burns a retry and eventually dead-letters for inspection.
		retries := entry.RetryCount + 1
		if retries >= e.cfg.MaxAttempts {
			return entryDone, e.deadLetterEntry(entry, retries, gwErr)
		}

		delay := backoffDelay(e.cfg.BackoffBase, e.cfg.BackoffMax, retries)
		err := e.store.RescheduleEntry(entry.ID, retries, time.Now().Add(delay), gwErr.Error())
		if err != nil {
			return 0, err
		}
		e.logger.Printf("%s on task %d rejected (attempt %d/%d): %v",
			entry.Op, entry.TaskID, retries, e.cfg.MaxAttempts, gwErr)
		// There is no caller waiting on a replayed entry, so the rejection
		// surfaces on the entity instead.
		if err := e.mirrorFailure(entry, errTag(gwErr)); err != nil {
			return 0, err
		}
		return entryDeferred, nil
	}
}

// callGateway dispatches the entry to the matching gateway call.
//
// Replay of deletions is idempotent: a not-found response means a previous
// attempt (or another client) already succeeded, reported as gone=true
// with no error. An attachment batch that no longer exists makes the
// upload entry vacuous, also no error.
func (e *Engine) callGateway(ctx context.Context, entry *model.OutboxEntry) (snap *gateway.TaskSnapshot, gone bool, err error) {
	switch entry.Op {
	case model.OpCreate:
		var p model.CreatePayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		snap, err = e.gw.CreateTask(ctx, gateway.CreateTaskRequest(p))
		return snap, false, err

	case model.OpUpdate:
		var p model.UpdatePayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		snap, err = e.gw.UpdateTask(ctx, entry.TaskID, updateRequest(p))
		return snap, false, err

	case model.OpDelete:
		err = e.gw.DeleteTask(ctx, entry.TaskID)
		if err != nil && errors.Is(err, gateway.ErrNotFound) {
			err = nil
		}
		return nil, true, err

	case model.OpCommentAdd:
		var p model.CommentAddPayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		snap, err = e.gw.AddComment(ctx, entry.TaskID, p.Body)
		return snap, false, err

	case model.OpCommentDelete:
		var p model.CommentDeletePayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		snap, err = e.gw.DeleteComment(ctx, entry.TaskID, p.CommentID)
		if err != nil && errors.Is(err, gateway.ErrNotFound) {
			return nil, false, nil
		}
		return snap, false, err

	case model.OpAttachmentAdd:
		var p model.AttachmentAddPayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		batch, err := e.store.GetBatch(p.BatchID)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Printf("attachment batch %s is gone, dropping upload entry %s", p.BatchID, entry.ID)
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		snap, err = e.gw.UploadAttachments(ctx, entry.TaskID, batch.Files)
		if err == nil {
			if delErr := e.store.DeleteBatch(batch.ID); delErr != nil {
				e.logger.Printf("failed to delete confirmed batch %s: %v", batch.ID, delErr)
			}
		}
		return snap, false, err

	case model.OpAttachmentDelete:
		var p model.AttachmentDeletePayload
		if err := entry.Decode(&p); err != nil {
			return nil, false, err
		}
		snap, err = e.gw.DeleteAttachment(ctx, entry.TaskID, p.AttachmentID)
		if err != nil && errors.Is(err, gateway.ErrNotFound) {
			return nil, false, nil
		}
		return snap, false, err

	default:
		return nil, false, errors.New("unknown operation kind " + string(entry.Op))
	}
}

// confirmEntry removes a successfully replayed entry and settles the
// cached task. A confirmed create additionally reconciles the local
// negative id to the canonical server id, atomically repointing every
// dependent entry and queued batch.
func (e *Engine) confirmEntry(entry *model.OutboxEntry, snap *gateway.TaskSnapshot, gone bool) error {
	if err := e.store.DeleteEntry(entry.ID); err != nil {
		return err
	}

	if entry.Op == model.OpCreate && snap != nil {
		remaining, err := e.store.HasEntriesForTask(entry.TaskID)
		if err != nil {
			return err
		}

		canonical := snap.ToModel()
		canonical.IsPending = remaining
		// The cached row still lives under the negative id here; its
		// unconfirmed comments move onto the canonical snapshot so their
		// pending state stays visible until their own entries replay.
		e.carryLocalComments(canonical, entry.TaskID, 0)
		if err := e.store.ReplaceTaskID(entry.TaskID, canonical); err != nil {
			return err
		}

		e.logger.Printf("task %d reconciled to server id %d", entry.TaskID, canonical.ID)
		return nil
	}

	if gone {
		return e.store.DeleteTask(entry.TaskID)
	}

	remaining, err := e.store.HasEntriesForTask(entry.TaskID)
	if err != nil {
		return err
	}

	if snap == nil {
		cached, err := e.store.GetTask(entry.TaskID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cached.IsPending = remaining
		return e.store.PutTask(cached)
	}

	settled := snap.ToModel()
	settled.IsPending = remaining
	e.carryLocalComments(settled, settled.ID, settledCommentID(entry))
	return e.store.PutTask(settled)
}

// carryLocalComments copies still-unconfirmed local comments from the
// cached row at cachedID onto a fresh server snapshot, so adopting
// canonical state mid-queue does not hide optimistic comments whose
// entries are pending. skipID names the local comment the current entry
// just settled; carrying it alongside its server-side copy would leave a
// ghost duplicate stuck pending forever.
func (e *Engine) carryLocalComments(settled *model.Task, cachedID, skipID int64) {
	cached, err := e.store.GetTask(cachedID)
	if err != nil {
		return
	}
	for _, c := range cached.Comments {
		if !c.IsLocal() || c.ID == skipID {
			continue
		}
		if settled.FindComment(c.ID) == nil {
			settled.Comments = append(settled.Comments, c)
		}
	}
}

// settledCommentID returns the local comment id a comment-add entry just
// settled (confirmed or dropped in a conflict), or 0 for other entries.
func settledCommentID(entry *model.OutboxEntry) int64 {
	if entry.Op != model.OpCommentAdd {
		return 0
	}
	var p model.CommentAddPayload
	if err := entry.Decode(&p); err != nil {
		return 0
	}
	return p.CommentID
}

// resolveReplayConflict applies remote-wins resolution during replay: drop
// the queued mutation, adopt the server snapshot when one was supplied,
// and leave the conflict tag on whatever remains.
func (e *Engine) resolveReplayConflict(entry *model.OutboxEntry, gwErr error) error {
	if err := e.store.DeleteEntry(entry.ID); err != nil {
		return err
	}

	e.logger.Printf("%s on task %d lost a conflict, adopting remote state: %v", entry.Op, entry.TaskID, gwErr)

	remaining, err := e.store.HasEntriesForTask(entry.TaskID)
	if err != nil {
		return err
	}

	var conflict *gateway.ConflictError
	if errors.As(gwErr, &conflict) && conflict.Snapshot != nil {
		adopted := conflict.Snapshot.ToModel()
		adopted.SyncError = model.SyncErrorConflict
		adopted.IsPending = remaining
		e.carryLocalComments(adopted, adopted.ID, settledCommentID(entry))
		return e.store.PutTask(adopted)
	}

	if entry.Op == model.OpDelete {
		// Our delete lost and no snapshot came back; the local cache was
		// already cleared optimistically, so there is nothing to mark.
		return nil
	}

	cached, err := e.store.GetTask(entry.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cached.IsPending = remaining
	cached.SyncError = model.SyncErrorConflict
	return e.store.PutTask(cached)
}

// deadLetterEntry moves an exhausted entry into the dead-letter archive
// and mirrors the failure onto the cached entity. The attachment batch of
// an upload entry stays in the blob store so a later manual retry can
// resend the same files.
func (e *Engine) deadLetterEntry(entry *model.OutboxEntry, retries int, gwErr error) error {
	letter := &model.DeadLetter{
		ID:         entry.ID,
		Op:         entry.Op,
		TaskID:     entry.TaskID,
		Payload:    entry.Payload,
		CreatedAt:  entry.CreatedAt,
		RetryCount: retries,
		Reason:     gwErr.Error(),
		FailedAt:   time.Now(),
	}

	if err := e.store.AddDeadLetter(letter); err != nil {
		return err
	}
	if err := e.store.DeleteEntry(entry.ID); err != nil {
		return err
	}

	e.logger.Printf("%s on task %d dead-lettered after %d attempts: %v", entry.Op, entry.TaskID, retries, gwErr)
	return e.mirrorFailure(entry, errTag(gwErr))
}

// mirrorFailure records a terminal sync failure on the cached entity: on
// the specific comment for a failed comment-add, on the task otherwise.
func (e *Engine) mirrorFailure(entry *model.OutboxEntry, tag string) error {
	cached, err := e.store.GetTask(entry.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if entry.Op == model.OpCommentAdd {
		var p model.CommentAddPayload
		if err := entry.Decode(&p); err == nil {
			if c := cached.FindComment(p.CommentID); c != nil {
				c.Pending = false
				c.SyncError = tag
			}
		}
	} else {
		cached.SyncError = tag
	}

	remaining, err := e.store.HasEntriesForTask(entry.TaskID)
	if err != nil {
		return err
	}
	cached.IsPending = remaining || cached.IsLocal()

	return e.store.PutTask(cached)
}

// armDueTimer schedules a wake-up at the earliest next-eligible time in
// the outbox, replacing any previously armed timer. Called after every
// queue mutation and at the end of every replay pass.
func (e *Engine) armDueTimer() {
	if e.closed.Load() {
		return
	}

	earliest, err := e.store.EarliestNextRetry()
	if err != nil {
		e.logger.Printf("failed to read retry schedule: %v", err)
		return
	}

	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	if e.dueTimer != nil {
		e.dueTimer.Stop()
		e.dueTimer = nil
	}
	if earliest == nil {
		return
	}

	delay := time.Until(*earliest)
	if delay < 0 {
		delay = 0
	}
	e.dueTimer = time.AfterFunc(delay, e.Kick)
}

// backoffDelay returns the capped exponential delay after the given number
// of failed attempts: base * 2^(retries-1), never above max.
func backoffDelay(base, max time.Duration, retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}

	delay := base
	for i := 1; i < retries; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// errTag shortens a gateway error into the tag mirrored onto entities.
func errTag(err error) string {
	s := err.Error()
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
