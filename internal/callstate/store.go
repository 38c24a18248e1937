package callstate

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("callstate: record not found")
	ErrAlreadyExists = errors.New("callstate: record already exists")
	ErrInvalidState  = errors.New("callstate: invalid candidate state")
)

// DurationUnknown marks a transition with no provider-reported duration.
const DurationUnknown = -1

// Extra carries optional bookkeeping fields that may accompany a transition.
type Extra struct {
	// DurationSeconds is the provider-reported duration in seconds, or
	// DurationUnknown when the provider did not report one.
	DurationSeconds int
	RecordingURL    string
}

// NoExtra is the zero-information Extra.
var NoExtra = Extra{DurationSeconds: DurationUnknown}

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Store owns all Record instances. Every mutation funnels through
// ApplyIfLegal under one lock, which is what makes the four entry points
// (placement, webhook, poll-reconcile, hangup) safe to interleave.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	clock   Clock
}

type Option func(*Store)

// WithClock sets the time source for the store.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*Record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new record in the initiated state.
func (s *Store) Create(id, counterparty, displayName string, direction Direction) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return Record{}, ErrAlreadyExists
	}
	now := s.clock()
	rec := &Record{
		ID:              id,
		Counterparty:    counterparty,
		DisplayName:     displayName,
		Direction:       direction,
		State:           StateInitiated,
		DurationSeconds: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.records[id] = rec
	return *rec, nil
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// ApplyIfLegal is the single mutation gate. It applies the candidate state
// only when it advances the lifecycle: terminal states absorb everything,
// and a candidate ranked at or below the current state is a no-op rather
// than an error. Callers broadcast only when changed is true, which is what
// suppresses duplicate notifications when a webhook and a poll race.
func (s *Store) ApplyIfLegal(id string, candidate State, observedAt time.Time, extra Extra) (changed bool, out Record, err error) {
	if !candidate.Valid() {
		return false, Record{}, ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, Record{}, ErrNotFound
	}
	if rec.State.IsTerminal() {
		return false, *rec, nil
	}
	if candidate.rank() <= rec.State.rank() {
		return false, *rec, nil
	}

	rec.State = candidate
	rec.UpdatedAt = s.clock()

	if candidate == StateInProgress && rec.AnsweredAt == nil {
		t := observedAt
		rec.AnsweredAt = &t
	}

	if candidate.IsTerminal() {
		switch {
		case extra.DurationSeconds >= 0:
			rec.DurationSeconds = extra.DurationSeconds
		case rec.AnsweredAt != nil:
			d := int(observedAt.Sub(*rec.AnsweredAt) / time.Second)
			if d < 0 {
				d = 0
			}
			rec.DurationSeconds = d
		default:
			rec.DurationSeconds = 0
		}
	}
	if extra.RecordingURL != "" {
		rec.RecordingURL = extra.RecordingURL
	}

	return true, *rec, nil
}

// AttachRecording annotates a record with its recording URL. This is legal
// even after a terminal state; it never alters the lifecycle state.
func (s *Store) AttachRecording(id, url string, durationSeconds int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.RecordingURL = url
	if rec.DurationSeconds == 0 && durationSeconds > 0 {
		rec.DurationSeconds = durationSeconds
	}
	rec.UpdatedAt = s.clock()
	return *rec, nil
}

// Delete removes a record. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// ListActive returns copies of all non-terminal records.
func (s *Store) ListActive() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range s.records {
		if !rec.State.IsTerminal() {
			out = append(out, *rec)
		}
	}
	return out
}

// ListStale returns ids eligible for garbage collection: terminal records
// idle past terminalRetention, and any record older than maxAge regardless
// of state (abandoned calls must not pin memory forever).
func (s *Store) ListStale(now time.Time, terminalRetention, maxAge time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.records {
		if rec.State.IsTerminal() && now.Sub(rec.UpdatedAt) > terminalRetention {
			ids = append(ids, id)
			continue
		}
		if now.Sub(rec.CreatedAt) > maxAge {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
