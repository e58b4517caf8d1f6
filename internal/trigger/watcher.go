package trigger

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskpilot/taskpilot/internal/logging"
)

// Watcher wakes the engine when the local database changes on disk. This
// is the cross-instance trigger: a short-lived CLI invocation enqueues an
// entry and exits, the long-running daemon sees the write and replays it.
//
// Writes from the engine's own process also land here; the extra kicks are
// absorbed by the single-flight replay guard.
type Watcher struct {
	dbPath   string
	notifier Notifier
	debounce time.Duration
	logger   *log.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher builds a storage watcher for the given database file.
func NewWatcher(dbPath string, notifier Notifier, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = logging.New("watcher")
	}
	return &Watcher{
		dbPath:   dbPath,
		notifier: notifier,
		debounce: 500 * time.Millisecond,
		logger:   logger,
	}
}

func (w *Watcher) Name() string { return "storage watcher" }

// Run watches the database directory until ctx is cancelled. The
// directory is watched rather than the file so rotation through the WAL
// sidecar files and atomic replaces are all seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.dbPath)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	base := filepath.Base(w.dbPath)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// The WAL sidecars (.db-wal, .db-shm) share the file's prefix.
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.kickSoon()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)
		}
	}
}

// kickSoon coalesces a burst of file events into one kick.
func (w *Watcher) kickSoon() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.notifier.Kick)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
