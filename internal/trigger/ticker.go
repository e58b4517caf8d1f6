package trigger

import (
	"context"
	"time"
)

// Ticker is the coarse periodic backstop: it kicks a replay pass on a
// fixed interval so a missed wake can delay sync by at most one tick.
type Ticker struct {
	notifier Notifier
	interval time.Duration
}

// NewTicker builds the periodic backstop. Interval must be positive.
func NewTicker(notifier Notifier, interval time.Duration) *Ticker {
	return &Ticker{notifier: notifier, interval: interval}
}

func (t *Ticker) Name() string { return "periodic ticker" }

// Run kicks on every interval until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.notifier.Kick()
		}
	}
}
