package messaging

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("messaging: message not found")
	ErrInvalidRequest = errors.New("messaging: invalid request")
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Status is the delivery state of an outbound message or "received" for
// inbound ones. Provider status webhooks advance outbound statuses.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusUndelivered Status = "undelivered"
	StatusFailed      Status = "failed"
	StatusReceived    Status = "received"
)

// MapProviderMessageStatus maps the provider's SMS status vocabulary onto
// ours. Unknown values return ok == false and are ignored.
func MapProviderMessageStatus(s string) (Status, bool) {
	switch s {
	case "queued", "accepted", "sending":
		return StatusQueued, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "undelivered":
		return StatusUndelivered, true
	case "failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

// Message is one SMS, inbound or outbound, keyed by the provider SID.
type Message struct {
	ID           string    `json:"id"`
	Counterparty string    `json:"counterparty"`
	Direction    Direction `json:"direction"`
	Body         string    `json:"body"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conversation summarizes the message history with one counterparty.
type Conversation struct {
	Counterparty string  `json:"counterparty"`
	LastMessage  Message `json:"last_message"`
	Unread       int     `json:"unread"`
}
