// Package sched provides a minimal periodic task runner with an explicit
// lifecycle, so background cycles (heartbeat sweep, record GC) can be driven
// by a ticker in production and by direct Tick calls in tests.
package sched

import (
	"context"
	"time"
)

// Periodic invokes Fn every Interval until the context is canceled.
type Periodic struct {
	Name     string
	Interval time.Duration
	Fn       func(now time.Time)
}

// Start runs the loop in the calling goroutine until ctx is done.
// Callers normally invoke it as `go task.Start(ctx)`.
func (p *Periodic) Start(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			p.Fn(now)
		case <-ctx.Done():
			return
		}
	}
}

// Tick fires one cycle synchronously. Tests use this instead of waiting on
// wall-clock timers.
func (p *Periodic) Tick(now time.Time) {
	p.Fn(now)
}
