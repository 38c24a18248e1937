package callstate

import "time"

// State is the lifecycle state of a tracked call.
type State string

const (
	StateInitiated  State = "initiated"
	StateRinging    State = "ringing"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateBusy       State = "busy"
	StateNoAnswer   State = "no_answer"
	StateCanceled   State = "canceled"
	StateFailed     State = "failed"
)

// IsTerminal reports whether no further lifecycle transition is accepted.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateBusy, StateNoAnswer, StateCanceled, StateFailed:
		return true
	default:
		return false
	}
}

// rank orders states along the lifecycle. All terminal states share the top
// rank; a candidate transition is legal only if it strictly increases rank.
func (s State) rank() int {
	switch s {
	case StateInitiated:
		return 0
	case StateRinging:
		return 1
	case StateInProgress:
		return 2
	case StateCompleted, StateBusy, StateNoAnswer, StateCanceled, StateFailed:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	return s.rank() >= 0
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Record is the in-memory belief about a single call. The provider remains
// the source of truth; records are rebuildable and lost on restart.
type Record struct {
	// ID is the provider call SID, or a locally generated placeholder in
	// simulated mode.
	ID string `json:"call_id"`

	Counterparty string    `json:"counterparty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Direction    Direction `json:"direction"`

	State State `json:"state"`

	// AnsweredAt is set once, on the first transition into in_progress.
	AnsweredAt *time.Time `json:"answered_at,omitempty"`

	DurationSeconds int    `json:"duration"`
	RecordingURL    string `json:"recording_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
