package push

import (
	"context"
	"encoding/json"
	"log/slog"

	"academy-caller/internal/metrics"
)

const publishBufferSize = 256

// Dispatcher fans events out to interested observers. A single dispatch
// loop drains the publish queue, so per-observer delivery order matches
// publish order. Delivery is best effort: a failed send unregisters the
// observer instead of retrying.
type Dispatcher struct {
	reg    *Registry
	events chan Event
	log    *slog.Logger
}

func NewDispatcher(reg *Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		reg:    reg,
		events: make(chan Event, publishBufferSize),
		log:    log,
	}
}

// Publish enqueues an event for fan-out. Never blocks the caller: when the
// queue is full the event is dropped and logged (observers reconcile via
// polling, so a dropped push is recoverable).
func (d *Dispatcher) Publish(ev Event) {
	metrics.Broadcasts.Inc()
	select {
	case d.events <- ev:
	default:
		d.log.Warn("push publish queue full, dropping event", "type", string(ev.Type), "call_id", ev.CallID)
	}
}

// Run drains the publish queue until ctx is done. Start exactly one.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.Dispatch(ev)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch delivers one event synchronously. Exposed so tests can drive
// fan-out without the Run loop.
func (d *Dispatcher) Dispatch(ev Event) {
	switch ev.Type {
	case EventConnected, EventCallStatus, EventRecordingReady, EventPong:
	default:
		d.log.Error("unknown push event type", "type", string(ev.Type))
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("push event marshal failed", "err", err)
		return
	}

	var failed []string
	for _, c := range d.reg.Snapshot() {
		if !c.wants(ev.CallID) {
			continue
		}
		if err := c.Send(data); err != nil {
			failed = append(failed, c.ID())
		}
	}

	// Self-heal: an observer we cannot write to is gone.
	for _, id := range failed {
		d.log.Debug("push send failed, unregistering observer", "observer_id", id)
		d.reg.Unregister(id)
	}
}
