package students

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service wraps the roster repository with validation and id assignment.
// It also serves as the name lookup for call and message handling.
type Service struct {
	repo  Repository
	clock func() time.Time
}

type ServiceOption func(*Service)

func WithClock(c func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, name, phone, notes string) (Student, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return Student{}, fmt.Errorf("%w: name and phone required", ErrInvalidRequest)
	}

	now := s.clock()
	st := Student{
		ID:        uuid.NewString(),
		Name:      name,
		Phone:     phone,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, st); err != nil {
		return Student{}, err
	}
	return st, nil
}

func (s *Service) Get(ctx context.Context, id string) (Student, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Student, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, id, name, phone, notes string) (Student, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		st.Name = name
	}
	if phone = strings.TrimSpace(phone); phone != "" {
		st.Phone = phone
	}
	if notes != "" {
		st.Notes = notes
	}
	st.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, st); err != nil {
		return Student{}, err
	}
	return st, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// NameByPhone resolves a phone number to the student's name. This is the
// hook call and message handling use to label counterparties.
func (s *Service) NameByPhone(ctx context.Context, phone string) (string, error) {
	st, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	return st.Name, nil
}
