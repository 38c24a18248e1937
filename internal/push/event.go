package push

// EventType enumerates the fixed set of server-to-client message kinds.
// The dispatcher switches exhaustively on these; adding a kind means
// touching that switch.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventCallStatus     EventType = "call_status"
	EventRecordingReady EventType = "recording_ready"
	EventPong           EventType = "pong"
)

// Event is the push channel payload. CallID doubles as the delivery scope:
// observers with a subscription filter receive only events whose CallID
// matches their filter, plus unscoped events (CallID == "").
type Event struct {
	Type            EventType `json:"type"`
	CallID          string    `json:"call_id,omitempty"`
	Status          string    `json:"status,omitempty"`
	DurationSeconds int       `json:"duration,omitempty"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	URL             string    `json:"url,omitempty"`
}

// CallStatusEvent builds the event broadcast on every accepted lifecycle
// transition.
func CallStatusEvent(callID, status string, durationSeconds int, recordingURL string) Event {
	return Event{
		Type:            EventCallStatus,
		CallID:          callID,
		Status:          status,
		DurationSeconds: durationSeconds,
		RecordingURL:    recordingURL,
	}
}

// RecordingReadyEvent builds the annotation event emitted when a recording
// finishes, scoped to its call.
func RecordingReadyEvent(callID, url string, durationSeconds int) Event {
	return Event{
		Type:            EventRecordingReady,
		CallID:          callID,
		URL:             url,
		DurationSeconds: durationSeconds,
	}
}

// ClientMessage is the client-to-server protocol: ping and call subscription.
type ClientMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
}

const (
	clientPing      = "ping"
	clientSubscribe = "subscribe_call"
)
