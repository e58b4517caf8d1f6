package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taskpilot/taskpilot/internal/logging"
)

// WakeListener accepts websocket connections from companion processes
// (editor plugins, a desktop tray app) that want to wake the replay loop.
// Any message is a wake; the literal message "online" additionally marks
// connectivity as restored, for companions that learn about the network
// before the probe does.
type WakeListener struct {
	addr     string
	notifier Notifier
	logger   *log.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewWakeListener builds the wake socket on the given listen address.
func NewWakeListener(addr string, notifier Notifier, logger *log.Logger) *WakeListener {
	if logger == nil {
		logger = logging.New("wake")
	}
	return &WakeListener{addr: addr, notifier: notifier, logger: logger}
}

func (l *WakeListener) Name() string { return "wake socket" }

// Addr returns the bound address once Run has started listening, else nil.
func (l *WakeListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run serves the wake socket until ctx is cancelled.
func (l *WakeListener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/wake", l.handleWake)

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (l *WakeListener) handleWake(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		l.logger.Printf("failed to accept wake connection: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}

		if string(msg) == "online" {
			l.notifier.SetOnline(true)
		}
		l.notifier.Kick()
	}
}
