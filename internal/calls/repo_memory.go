package calls

import (
	"context"
	"sync"
	"time"

	"academy-caller/internal/callstate"
)

// MemoryRepo is an in-memory call log for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	recs map[string]callstate.Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{recs: make(map[string]callstate.Record)}
}

func (r *MemoryRepo) Save(ctx context.Context, rec callstate.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (callstate.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return callstate.Record{}, callstate.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) List(ctx context.Context, from, to time.Time) ([]callstate.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]callstate.Record, 0)
	for _, rec := range r.recs {
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
