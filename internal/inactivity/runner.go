package inactivity

import (
	"context"
	"time"
)

// DefaultInterval gives the warning countdown one-second resolution.
const DefaultInterval = time.Second

// Runner drives a Monitor from a real ticker.
type Runner struct {
	monitor  *Monitor
	interval time.Duration
}

// NewRunner returns a Runner ticking m every interval (DefaultInterval if <= 0).
func NewRunner(m *Monitor, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{monitor: m, interval: interval}
}

// Run ticks the monitor until ctx is done. An idle monitor is ticked too; the
// tick is a no-op until the next Start.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.monitor.Tick()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
