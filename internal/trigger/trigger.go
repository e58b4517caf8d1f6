// Package trigger provides the wake sources that drive the sync engine's
// replay loop: a connectivity probe, a coarse periodic ticker, a local
// storage watcher for cross-instance wakes, and a websocket listener for
// companion processes.
//
// Sources are advisory. Each one degrades independently: a source that
// fails to start is logged and skipped, the rest keep running, and the
// engine's own due timer still fires regardless.
package trigger

import (
	"context"
	"log"
	"sync"

	"github.com/taskpilot/taskpilot/internal/logging"
)

// Notifier is the engine surface the wake sources drive.
type Notifier interface {
	// SetOnline records the observed connectivity state.
	SetOnline(online bool)
	// Online returns the last recorded connectivity state.
	Online() bool
	// Kick requests a replay pass. Must be cheap and non-blocking.
	Kick()
}

// Source is one wake source. Run blocks until the context is cancelled or
// the source fails permanently.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// Group runs a set of wake sources until the context is cancelled. A
// failing source is logged and dropped; the group keeps going.
type Group struct {
	sources []Source
	logger  *log.Logger
}

// NewGroup builds a group over the given sources. Nil sources are skipped
// so callers can pass conditionally constructed ones directly.
func NewGroup(logger *log.Logger, sources ...Source) *Group {
	if logger == nil {
		logger = logging.New("trigger")
	}

	g := &Group{logger: logger}
	for _, s := range sources {
		if s != nil {
			g.sources = append(g.sources, s)
		}
	}
	return g
}

// Run starts every source and blocks until all of them return.
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range g.sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			g.logger.Printf("%s started", s.Name())
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				g.logger.Printf("%s stopped: %v", s.Name(), err)
			}
		}(src)
	}
	wg.Wait()
}
