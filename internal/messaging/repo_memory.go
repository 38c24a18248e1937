package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory SMS history for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	msgs map[string]Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{msgs: make(map[string]Message)}
}

func (r *MemoryRepo) Save(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.msgs[m.ID]; exists {
		return nil
	}
	r.msgs[m.ID] = m
	return nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = at
	r.msgs[id] = m
	return nil
}

func (r *MemoryRepo) ListByCounterparty(ctx context.Context, counterparty string, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for _, m := range r.msgs {
		if m.Counterparty == counterparty {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListLatest(ctx context.Context) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[string]Message)
	for _, m := range r.msgs {
		cur, ok := latest[m.Counterparty]
		if !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[m.Counterparty] = m
		}
	}
	out := make([]Message, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
