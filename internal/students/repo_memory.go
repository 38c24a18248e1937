package students

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory roster for tests and early development.
type MemoryRepo struct {
	mu      sync.Mutex
	byID    map[string]Student
	byPhone map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Student),
		byPhone: make(map[string]string),
	}
}

func (r *MemoryRepo) Insert(ctx context.Context, s Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[s.Phone]; exists {
		return ErrDuplicatePhone
	}
	r.byID[s.ID] = s
	r.byPhone[s.Phone] = s.ID
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) GetByPhone(ctx context.Context, phone string) (Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return Student{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Student, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, s Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	if s.Phone != old.Phone {
		if _, taken := r.byPhone[s.Phone]; taken {
			return ErrDuplicatePhone
		}
		delete(r.byPhone, old.Phone)
		r.byPhone[s.Phone] = s.ID
	}
	r.byID[s.ID] = s
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byPhone, s.Phone)
	return nil
}
