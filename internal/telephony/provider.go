package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Provider defines the provider-agnostic call-control interface used by
// business logic.
//
// Rules:
// - No provider SDK or REST calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
// - Asynchronous status flows back through the webhook surface, never here.
type Provider interface {
	Name() string

	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// CompleteCall asks the provider to terminate a call. Idempotent from
	// the caller's perspective: completing an already-ended call succeeds.
	CompleteCall(ctx context.Context, callSID string) error

	FetchCallStatus(ctx context.Context, callSID string) (CallStatusResult, error)

	SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResult, error)

	ListRecordings(ctx context.Context, callSID string) ([]Recording, error)
}

type PlaceCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	// AnswerURL serves call instructions when the callee picks up.
	AnswerURL string `json:"answer_url"`

	// StatusCallbackURL receives lifecycle status webhooks.
	StatusCallbackURL string `json:"status_callback_url"`

	// Record enables call recording; RecordingCallbackURL receives the
	// recording-status webhook when set.
	Record               bool   `json:"record"`
	RecordingCallbackURL string `json:"recording_callback_url,omitempty"`
}

type PlaceCallResult struct {
	// CallSID is the provider's unique identifier for this call.
	CallSID string `json:"call_sid"`
}

type CallStatusResult struct {
	// Status is the provider's raw status vocabulary; map it with
	// MapProviderStatus before applying.
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
}

type SendMessageRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`

	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type SendMessageResult struct {
	MessageSID string `json:"message_sid"`
}

type Recording struct {
	RecordingSID    string `json:"recording_sid"`
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// ProviderError reports a call-control failure at the provider boundary.
// Retryable by the operator, never retried automatically.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("telephony: provider error %d: %s", e.Code, e.Message)
}

var (
	// ErrNotConfigured means a capability's credentials are absent; the
	// feature is disabled rather than the process crashing.
	ErrNotConfigured = errors.New("telephony: credentials not configured")

	// ErrValidation means an inbound webhook body was malformed.
	ErrValidation = errors.New("telephony: invalid webhook payload")
)
