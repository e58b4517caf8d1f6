package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeNotifier struct {
	mu     sync.Mutex
	online bool
	kicks  int
}

func (f *fakeNotifier) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func (f *fakeNotifier) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeNotifier) Kick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeNotifier) kickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakePinger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestProbeKicksOnRecoveryEdge(t *testing.T) {
	n := &fakeNotifier{}
	p := &fakePinger{err: errors.New("down")}
	probe := NewProbe(p, n, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go probe.Run(ctx)

	waitFor(t, time.Second, func() bool { return !n.Online() }, "probe never marked offline")
	if n.kickCount() != 0 {
		t.Errorf("failing probe must not kick, got %d", n.kickCount())
	}

	p.setErr(nil)
	waitFor(t, time.Second, func() bool { return n.Online() }, "probe never marked online")
	waitFor(t, time.Second, func() bool { return n.kickCount() >= 1 }, "recovery edge never kicked")

	// Staying online must not keep kicking.
	kicks := n.kickCount()
	time.Sleep(50 * time.Millisecond)
	if n.kickCount() != kicks {
		t.Errorf("steady online state kicked again: %d -> %d", kicks, n.kickCount())
	}
}

func TestTickerKicksPeriodically(t *testing.T) {
	n := &fakeNotifier{}
	tick := NewTicker(n, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tick.Run(ctx)

	waitFor(t, time.Second, func() bool { return n.kickCount() >= 2 }, "ticker never kicked")
}

func TestWatcherKicksOnDatabaseWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "taskpilot.db")
	if err := os.WriteFile(dbPath, []byte("seed"), 0644); err != nil {
		t.Fatal(err)
	}

	n := &fakeNotifier{}
	w := NewWatcher(dbPath, n, quietLogger())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(dbPath+"-wal", []byte("change"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return n.kickCount() >= 1 }, "watcher never kicked")
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "taskpilot.db")

	n := &fakeNotifier{}
	w := NewWatcher(dbPath, n, quietLogger())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if n.kickCount() != 0 {
		t.Errorf("unrelated file kicked the engine %d times", n.kickCount())
	}
}

func TestWakeListenerKicksOnMessage(t *testing.T) {
	n := &fakeNotifier{}
	l := NewWakeListener("127.0.0.1:0", n, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	waitFor(t, time.Second, func() bool { return l.Addr() != nil }, "listener never bound")

	url := fmt.Sprintf("ws://%s/wake", l.Addr())
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("failed to dial wake socket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte("online")); err != nil {
		t.Fatalf("failed to send wake: %v", err)
	}

	waitFor(t, time.Second, func() bool { return n.kickCount() >= 1 }, "wake message never kicked")
	if !n.Online() {
		t.Error("online wake message should mark connectivity restored")
	}
}

func TestGroupSkipsNilSources(t *testing.T) {
	n := &fakeNotifier{}
	g := NewGroup(quietLogger(), nil, NewTicker(n, 10*time.Millisecond), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	g.Run(ctx)

	if n.kickCount() < 1 {
		t.Error("group never ran its non-nil source")
	}
}
