package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/store"
)

// Entries returns the pending outbox entries, oldest first.
func (e *Engine) Entries() ([]*model.OutboxEntry, error) {
	return e.store.AllEntries()
}

// QueueDepth returns the number of pending outbox entries.
func (e *Engine) QueueDepth() (int, error) {
	return e.store.OutboxCount()
}

// ListDeadLetters returns the archived entries, most recent failure first.
func (e *Engine) ListDeadLetters() ([]*model.DeadLetter, error) {
	return e.store.ListDeadLetters()
}

// RetryDeadLetter re-enqueues an archived entry as a fresh outbox entry
// with a full retry budget, due immediately, and kicks a replay pass. The
// retried entry queues behind anything already pending for its task.
func (e *Engine) RetryDeadLetter(id string) error {
	letter, err := e.store.GetDeadLetter(id)
	if err != nil {
		return err
	}

	now := time.Now()
	entry := &model.OutboxEntry{
		ID:          uuid.NewString(),
		Op:          letter.Op,
		TaskID:      letter.TaskID,
		Payload:     letter.Payload,
		CreatedAt:   now,
		NextRetryAt: now,
	}

	if err := e.store.AddEntry(entry); err != nil {
		return err
	}
	if err := e.store.DeleteDeadLetter(id); err != nil {
		return err
	}

	e.logger.Printf("dead letter %s re-enqueued as entry %s", id, entry.ID)
	e.Kick()
	return nil
}

// DiscardDeadLetter permanently abandons an archived entry. An abandoned
// attachment upload also releases its queued file batch.
func (e *Engine) DiscardDeadLetter(id string) error {
	letter, err := e.store.GetDeadLetter(id)
	if err != nil {
		return err
	}

	if letter.Op == model.OpAttachmentAdd {
		var p model.AttachmentAddPayload
		if decErr := (&model.OutboxEntry{Op: letter.Op, ID: letter.ID, Payload: letter.Payload}).Decode(&p); decErr == nil {
			if err := e.store.DeleteBatch(p.BatchID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
	}

	if err := e.store.DeleteDeadLetter(id); err != nil {
		return err
	}

	e.logger.Printf("dead letter %s discarded", id)
	return nil
}
