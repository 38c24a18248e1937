package students

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("students: student not found")
	ErrDuplicatePhone = errors.New("students: phone number already registered")
	ErrInvalidRequest = errors.New("students: invalid request")
)

// Student is one roster entry. Phone numbers are unique: they are how
// inbound calls and messages are matched back to a person.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
