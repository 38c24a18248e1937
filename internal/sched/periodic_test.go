package sched

import (
	"context"
	"testing"
	"time"
)

func TestPeriodic_TickIsSynchronous(t *testing.T) {
	var got []time.Time
	p := &Periodic{
		Name:     "test",
		Interval: time.Hour,
		Fn:       func(now time.Time) { got = append(got, now) },
	}

	t0 := time.Unix(1700000000, 0)
	p.Tick(t0)
	p.Tick(t0.Add(time.Minute))

	if len(got) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(got))
	}
	if !got[0].Equal(t0) {
		t.Fatalf("expected tick time passed through, got %v", got[0])
	}
}

func TestPeriodic_StartStopsOnCancel(t *testing.T) {
	fired := make(chan struct{}, 16)
	p := &Periodic{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Fn:       func(time.Time) { fired <- struct{}{} },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("periodic task never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("periodic task did not stop on cancel")
	}
}
