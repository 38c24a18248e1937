package push

import (
	"log/slog"
	"sync"
	"time"

	"academy-caller/internal/metrics"
)

// Registry owns all live observer connections and enforces the hard cap on
// fan-out cost. The dispatcher reads connections to deliver; only the
// registry creates and destroys them.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	max   int
	log   *slog.Logger
}

func NewRegistry(maxObservers int, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns: make(map[string]*Conn),
		max:   maxObservers,
		log:   log,
	}
}

// Register adds a connection. Past the cap it returns ErrCapacity and the
// connection is left untouched; existing observers are unaffected.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.max {
		return ErrCapacity
	}
	r.conns[c.ID()] = c
	metrics.Observers.Set(float64(len(r.conns)))
	return nil
}

// Unregister removes and closes a connection. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	metrics.Observers.Set(float64(len(r.conns)))
	r.mu.Unlock()

	if ok {
		_ = c.Close()
	}
}

// Snapshot returns the current set of registered connections, including
// ones that closed but have not been unregistered yet. The dispatcher
// relies on seeing those to self-heal the registry.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// ForEachAlive calls fn for every registered open connection. fn must not
// call back into the registry.
func (r *Registry) ForEachAlive(fn func(*Conn)) {
	for _, c := range r.Snapshot() {
		if !c.Closed() {
			fn(c)
		}
	}
}

// MarkAlive records liveness proof for a connection, if it is still known.
func (r *Registry) MarkAlive(id string) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if ok {
		c.MarkAlive()
	}
}

// SetFilter sets the subscription filter for a connection.
func (r *Registry) SetFilter(id, callID string) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if ok {
		c.SetFilter(callID)
	}
}

// SweepDead runs one heartbeat cycle: evict connections that produced no
// liveness proof since the previous cycle, then challenge the rest with a
// ping. A healthy connection is therefore never evicted by a single slow
// cycle, and a silent one is gone within two intervals.
func (r *Registry) SweepDead(now time.Time) (evicted int) {
	r.mu.Lock()
	var dead []*Conn
	for id, c := range r.conns {
		if c.Closed() || c.sweep() {
			dead = append(dead, c)
			delete(r.conns, id)
		}
	}
	remaining := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		remaining = append(remaining, c)
	}
	metrics.Observers.Set(float64(len(r.conns)))
	r.mu.Unlock()

	for _, c := range dead {
		_ = c.Close()
		r.log.Debug("push observer evicted", "observer_id", c.ID())
	}
	for _, c := range remaining {
		c.Ping()
	}
	return len(dead)
}

// Count returns the number of registered observers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Full reports whether the registry is at capacity.
func (r *Registry) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) >= r.max
}
