package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/internal/gateway"
	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/store"
)

func TestReplayReconcilesCreateAndDependents(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()
	e.SetOnline(false)

	task, err := e.Create(ctx, model.CreatePayload{Title: "Built offline"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.AddComment(ctx, task.ID, "first"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if _, err := e.Update(ctx, task.ID, model.UpdatePayload{Title: "Built offline v2", Status: model.StatusDone}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	files := []model.BatchFile{{Name: "spec.txt", Data: []byte("x")}}
	if _, err := e.UploadAttachments(ctx, task.ID, files); err != nil {
		t.Fatalf("UploadAttachments failed: %v", err)
	}
	if n := outboxCount(t, st); n != 4 {
		t.Fatalf("expected 4 queued entries, got %d", n)
	}

	e.SetOnline(true)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	// Creation first, then the dependents against the reconciled id.
	calls := gw.callLog()
	if len(calls) != 4 {
		t.Fatalf("expected 4 gateway calls, got %v", calls)
	}
	wantPrefixes := []string{"create:", "comment:100:", "update:100", "upload:100:1"}
	for i, want := range wantPrefixes {
		if !strings.HasPrefix(calls[i], want) {
			t.Errorf("call %d: expected prefix %q, got %q", i, want, calls[i])
		}
	}

	if n := outboxCount(t, st); n != 0 {
		t.Errorf("expected drained outbox, got %d entries", n)
	}
	if _, err := st.GetTask(task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("local id should be gone after reconciliation, got %v", err)
	}

	settled, err := st.GetTask(100)
	if err != nil {
		t.Fatalf("reconciled task missing: %v", err)
	}
	if settled.IsPending {
		t.Error("fully replayed task should not be pending")
	}
	if settled.Title != "Built offline v2" {
		t.Errorf("unexpected title %q", settled.Title)
	}
	if len(settled.Comments) != 1 || settled.Comments[0].IsLocal() {
		t.Errorf("expected one confirmed comment, got %+v", settled.Comments)
	}
	if len(settled.Attachments) != 1 {
		t.Errorf("expected one attachment, got %+v", settled.Attachments)
	}

	batches, err := st.BatchIDsForTask(100)
	if err != nil {
		t.Fatalf("BatchIDsForTask failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("confirmed upload should release its batch, got %d", len(batches))
	}
}

func TestReplayBlocksDependentsWithoutRetryCost(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()
	e.SetOnline(false)

	task, err := e.Create(ctx, model.CreatePayload{Title: "Doomed create"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.AddComment(ctx, task.ID, "dependent"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	// The create is rejected; the dependent comment cannot run against a
	// negative id and must be skipped without burning retries.
	gw.setFailAll(errFatal)
	e.SetOnline(true)
	if err := e.Replay(ctx, false); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	entries, err := st.AllEntries()
	if err != nil {
		t.Fatalf("AllEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both entries still queued, got %d", len(entries))
	}
	for _, entry := range entries {
		switch entry.Op {
		case model.OpCreate:
			if entry.RetryCount != 1 {
				t.Errorf("rejected create should have 1 retry, got %d", entry.RetryCount)
			}
		case model.OpCommentAdd:
			if entry.RetryCount != 0 {
				t.Errorf("blocked dependent must not be charged a retry, got %d", entry.RetryCount)
			}
			if entry.NextRetryAt.After(time.Now().Add(time.Minute)) {
				t.Errorf("blocked dependent should stay due, next at %v", entry.NextRetryAt)
			}
		}
	}
}

func TestReplayTransientStopsPass(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	a := gw.seedTask("Task A")
	b := gw.seedTask("Task B")
	if err := st.PutTask(a.ToModel()); err != nil {
		t.Fatal(err)
	}
	if err := st.PutTask(b.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.Update(ctx, a.ID, model.UpdatePayload{Title: "A2", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update A failed: %v", err)
	}
	if _, err := e.Update(ctx, b.ID, model.UpdatePayload{Title: "B2", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update B failed: %v", err)
	}

	gw.setFailAll(errTransient)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	// One transient failure means unreachable; the second entry must not
	// have been attempted.
	updates := 0
	for _, c := range gw.callLog() {
		if strings.HasPrefix(c, "update:") {
			updates++
		}
	}
	if updates != 1 {
		t.Errorf("expected exactly 1 attempt before the pass stopped, got %d", updates)
	}
	if n := outboxCount(t, st); n != 2 {
		t.Errorf("expected both entries still queued, got %d", n)
	}
}

func TestReplayExhaustionDeadLettersAndMirrors(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxAttempts = 2
	e, gw, st := newTestEngine(t, cfg)
	ctx := context.Background()

	seeded := gw.seedTask("Flaky")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.Update(ctx, seeded.ID, model.UpdatePayload{Title: "Flaky v2", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	gw.setFailAll(errTransient)
	for i := 0; i < cfg.MaxAttempts; i++ {
		if err := e.ForceSyncNow(ctx); err != nil {
			t.Fatalf("ForceSyncNow %d failed: %v", i, err)
		}
	}

	if n := outboxCount(t, st); n != 0 {
		t.Fatalf("exhausted entry should leave the outbox, got %d", n)
	}

	letters, err := st.ListDeadLetters()
	if err != nil {
		t.Fatalf("ListDeadLetters failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(letters))
	}
	if letters[0].RetryCount != cfg.MaxAttempts {
		t.Errorf("expected %d recorded attempts, got %d", cfg.MaxAttempts, letters[0].RetryCount)
	}
	if letters[0].Reason == "" {
		t.Error("dead letter should record the final error")
	}

	cached, err := st.GetTask(seeded.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if cached.SyncError == "" {
		t.Error("exhaustion should mirror a sync error onto the task")
	}
	if cached.IsPending {
		t.Error("task with no remaining entries should not be pending")
	}
}

func TestRetryDeadLetterGetsFreshBudget(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxAttempts = 1
	e, gw, st := newTestEngine(t, cfg)
	ctx := context.Background()

	seeded := gw.seedTask("Recoverable")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.Update(ctx, seeded.ID, model.UpdatePayload{Title: "Recovered", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	gw.setFailAll(errTransient)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	letters, err := st.ListDeadLetters()
	if err != nil || len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d (err %v)", len(letters), err)
	}

	gw.setFailAll(nil)
	if err := e.RetryDeadLetter(letters[0].ID); err != nil {
		t.Fatalf("RetryDeadLetter failed: %v", err)
	}

	entries, err := st.AllEntries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 re-enqueued entry, got %d (err %v)", len(entries), err)
	}
	if entries[0].RetryCount != 0 {
		t.Errorf("retried entry should start with a fresh budget, got %d", entries[0].RetryCount)
	}

	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	cached, err := st.GetTask(seeded.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if cached.Title != "Recovered" {
		t.Errorf("replayed update not applied, got %q", cached.Title)
	}
	remaining, err := st.ListDeadLetters()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("retried letter should leave the archive, got %d", len(remaining))
	}
}

func TestDiscardDeadLetterReleasesBatch(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxAttempts = 1
	e, gw, st := newTestEngine(t, cfg)
	ctx := context.Background()

	seeded := gw.seedTask("With files")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	files := []model.BatchFile{{Name: "big.bin", Data: []byte("payload")}}
	if _, err := e.UploadAttachments(ctx, seeded.ID, files); err != nil {
		t.Fatalf("UploadAttachments failed: %v", err)
	}

	gw.setFailAll(errTransient)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	letters, err := st.ListDeadLetters()
	if err != nil || len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d (err %v)", len(letters), err)
	}

	// The batch survives dead-lettering so a retry can resend the files.
	batches, err := st.BatchIDsForTask(seeded.ID)
	if err != nil || len(batches) != 1 {
		t.Fatalf("expected the batch to survive, got %d (err %v)", len(batches), err)
	}

	if err := e.DiscardDeadLetter(letters[0].ID); err != nil {
		t.Fatalf("DiscardDeadLetter failed: %v", err)
	}

	batches, err = st.BatchIDsForTask(seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("discard should release the batch, got %d", len(batches))
	}
}

func TestReplayConflictAdoptsSnapshot(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Contested")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.Update(ctx, seeded.ID, model.UpdatePayload{Title: "My edit", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	winner := &gateway.TaskSnapshot{
		ID:        seeded.ID,
		Title:     "Their edit",
		Status:    string(model.StatusOpen),
		CreatedAt: seeded.CreatedAt,
		UpdatedAt: time.Now(),
	}
	gw.setFailAll(&gateway.ConflictError{Snapshot: winner})

	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	if n := outboxCount(t, st); n != 0 {
		t.Errorf("lost conflict should drop the entry, got %d queued", n)
	}
	cached, err := st.GetTask(seeded.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if cached.Title != "Their edit" {
		t.Errorf("remote-wins should adopt the snapshot, got %q", cached.Title)
	}
	if cached.SyncError != model.SyncErrorConflict {
		t.Errorf("expected conflict tag, got %q", cached.SyncError)
	}
}

func TestReplayCommentOnSyncedTaskAppearsOnce(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Discussed")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.AddComment(ctx, seeded.ID, "offline note"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	e.SetOnline(true)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	cached, err := st.GetTask(seeded.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	// The confirmed server copy must fully replace the optimistic one; a
	// leftover negative-id copy would stay pending forever with no entry
	// behind it.
	if len(cached.Comments) != 1 {
		t.Fatalf("expected the comment exactly once after replay, got %d copies", len(cached.Comments))
	}
	if c := cached.Comments[0]; c.IsLocal() || c.Pending {
		t.Errorf("expected a confirmed comment, got id=%d pending=%v", c.ID, c.Pending)
	}
	if cached.IsPending {
		t.Error("drained task should not be pending")
	}
}

func TestReplayCarriesPendingCommentThroughReconciliation(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()
	e.SetOnline(false)

	task, err := e.Create(ctx, model.CreatePayload{Title: "Built offline"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	commented, err := e.AddComment(ctx, task.ID, "sticky note")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	localCommentID := commented.Comments[0].ID

	// The create confirms, but the comment-add behind it fails transiently
	// and stays queued.
	gw.setFailOp("comment", errTransient)
	e.SetOnline(true)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	settled, err := st.GetTask(100)
	if err != nil {
		t.Fatalf("reconciled task missing: %v", err)
	}
	if len(settled.Comments) != 1 {
		t.Fatalf("unconfirmed comment vanished during reconciliation: %+v", settled.Comments)
	}
	if c := settled.Comments[0]; c.ID != localCommentID || !c.Pending {
		t.Errorf("expected the local comment still pending, got id=%d pending=%v", c.ID, c.Pending)
	}
	if !settled.IsPending {
		t.Error("task with a queued comment should stay pending")
	}
}

func TestReplayMirrorsFatalOntoComment(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Strict")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.AddComment(ctx, seeded.ID, "rejected body"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	gw.setFailAll(errFatal)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	cached, err := st.GetTask(seeded.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(cached.Comments) != 1 {
		t.Fatalf("expected the rejected comment to stay visible, got %+v", cached.Comments)
	}
	// The failure lands on the specific comment, not on the task.
	c := cached.Comments[0]
	if !c.IsLocal() || c.Pending || c.SyncError == "" {
		t.Errorf("expected the comment marked failed, got id=%d pending=%v err=%q", c.ID, c.Pending, c.SyncError)
	}
	if cached.SyncError != "" {
		t.Errorf("task-level sync error should stay clear, got %q", cached.SyncError)
	}
}

func TestForcedPassAttemptsFatalEntryOnce(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Rejected")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if _, err := e.Update(ctx, seeded.ID, model.UpdatePayload{Title: "Nope", Status: model.StatusOpen}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	gw.setFailAll(errFatal)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	// One pass, one attempt: the rescheduled entry must not be re-read and
	// retried until its whole budget is gone.
	updates := 0
	for _, c := range gw.callLog() {
		if strings.HasPrefix(c, "update:") {
			updates++
		}
	}
	if updates != 1 {
		t.Errorf("expected exactly 1 attempt in a single forced pass, got %d", updates)
	}

	entries, err := st.AllEntries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected the entry still queued, got %d (err %v)", len(entries), err)
	}
	if entries[0].RetryCount != 1 {
		t.Errorf("expected 1 recorded retry, got %d", entries[0].RetryCount)
	}
	letters, err := st.ListDeadLetters()
	if err != nil {
		t.Fatal(err)
	}
	if len(letters) != 0 {
		t.Errorf("a single pass must not exhaust the budget, got %d dead letters", len(letters))
	}
}

func TestReplayDeleteIsIdempotent(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Going away")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	if err := e.Remove(ctx, seeded.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// Another client deleted it first.
	gw.dropTask(seeded.ID)
	e.SetOnline(true)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	if n := outboxCount(t, st); n != 0 {
		t.Errorf("not-found delete should count as success, got %d queued", n)
	}
	if _, err := st.GetTask(seeded.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("task should be gone from cache, got %v", err)
	}
}

func TestReplaySkipsVacuousBatchEntry(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()

	seeded := gw.seedTask("Batchless")
	if err := st.PutTask(seeded.ToModel()); err != nil {
		t.Fatal(err)
	}

	e.SetOnline(false)
	files := []model.BatchFile{{Name: "gone.txt", Data: []byte("x")}}
	if _, err := e.UploadAttachments(ctx, seeded.ID, files); err != nil {
		t.Fatalf("UploadAttachments failed: %v", err)
	}

	batches, err := st.BatchIDsForTask(seeded.ID)
	if err != nil || len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d (err %v)", len(batches), err)
	}
	if err := st.DeleteBatch(batches[0]); err != nil {
		t.Fatalf("DeleteBatch failed: %v", err)
	}

	e.SetOnline(true)
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}

	if n := outboxCount(t, st); n != 0 {
		t.Errorf("vacuous upload entry should be dropped, got %d queued", n)
	}
	for _, c := range gw.callLog() {
		if strings.HasPrefix(c, "upload:") {
			t.Errorf("vacuous entry must not hit the gateway: %v", gw.callLog())
		}
	}
}

func TestReplayNormalPassSkipsWhileOffline(t *testing.T) {
	e, gw, st := newTestEngine(t, quietConfig())
	ctx := context.Background()
	e.SetOnline(false)

	if _, err := e.Create(ctx, model.CreatePayload{Title: "Waiting"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := e.Replay(ctx, false); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(gw.callLog()) != 0 {
		t.Errorf("offline pass must not call the gateway: %v", gw.callLog())
	}
	if n := outboxCount(t, st); n != 1 {
		t.Errorf("offline pass must not touch the queue, got %d", n)
	}

	// A forced pass ignores the connectivity flag.
	if err := e.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow failed: %v", err)
	}
	if n := outboxCount(t, st); n != 0 {
		t.Errorf("forced pass should drain the queue, got %d", n)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 10 * time.Second
	max := 10 * time.Minute

	cases := []struct {
		retries int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{6, 320 * time.Second},
		{7, max},
		{100, max},
		{0, 10 * time.Second},
	}

	for _, tc := range cases {
		if got := backoffDelay(base, max, tc.retries); got != tc.want {
			t.Errorf("backoffDelay(retries=%d) = %v, want %v", tc.retries, got, tc.want)
		}
	}
}
