package push

import "errors"

var (
	// ErrCapacity is returned when the observer cap is reached. It is a
	// normal, user-visible rejection, not a fault.
	ErrCapacity = errors.New("push: observer capacity reached")

	ErrConnClosed     = errors.New("push: connection closed")
	ErrSendBufferFull = errors.New("push: send buffer full")
)
