package trigger

import (
	"context"
	"log"
	"time"

	"github.com/taskpilot/taskpilot/internal/logging"
)

// Pinger is the slice of the gateway the probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe polls the gateway with a cheap request and feeds the observed
// connectivity state to the engine. An offline-to-online transition kicks
// a replay pass immediately instead of waiting out the backoff schedule.
type Probe struct {
	pinger   Pinger
	notifier Notifier
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

// NewProbe builds a connectivity probe. Interval must be positive.
func NewProbe(pinger Pinger, notifier Notifier, interval time.Duration, logger *log.Logger) *Probe {
	if logger == nil {
		logger = logging.New("probe")
	}
	return &Probe{
		pinger:   pinger,
		notifier: notifier,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

func (p *Probe) Name() string { return "connectivity probe" }

// Run probes immediately, then on every interval, until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(pctx); err != nil {
		if p.notifier.Online() {
			p.logger.Printf("connectivity lost: %v", err)
		}
		p.notifier.SetOnline(false)
		return
	}

	wasOffline := !p.notifier.Online()
	p.notifier.SetOnline(true)
	if wasOffline {
		p.logger.Printf("gateway reachable again, waking replay")
		p.notifier.Kick()
	}
}
