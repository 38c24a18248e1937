package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"academy-caller/internal/callstate"
)

// Webhook payload parsing. Twilio sends application/x-www-form-urlencoded by
// default. Each form is parsed into a typed struct at the boundary, with a
// single validation error on malformed input; handler bodies never dig
// through raw form values.

// StatusCallbackForm captures the call-status webhook fields we care about.
type StatusCallbackForm struct {
	CallSID    string
	CallStatus string

	// DurationSeconds is callstate.DurationUnknown when Twilio omitted it
	// (only terminal events carry CallDuration).
	DurationSeconds int
	RecordingURL    string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	f := StatusCallbackForm{
		CallSID:         strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus:      strings.TrimSpace(r.PostFormValue("CallStatus")),
		DurationSeconds: parseDuration(r.PostFormValue("CallDuration")),
		RecordingURL:    strings.TrimSpace(r.PostFormValue("RecordingUrl")),
	}
	if f.CallSID == "" || f.CallStatus == "" {
		return StatusCallbackForm{}, fmt.Errorf("%w: CallSid and CallStatus are required", ErrValidation)
	}
	return f, nil
}

// RecordingCallbackForm captures the recording-status webhook fields.
type RecordingCallbackForm struct {
	RecordingSID    string
	RecordingURL    string
	RecordingStatus string
	DurationSeconds int
	CallSID         string
}

func ParseRecordingCallback(r *http.Request) (RecordingCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingCallbackForm{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	f := RecordingCallbackForm{
		RecordingSID:    strings.TrimSpace(r.PostFormValue("RecordingSid")),
		RecordingURL:    strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingStatus: strings.TrimSpace(r.PostFormValue("RecordingStatus")),
		DurationSeconds: parseDuration(r.PostFormValue("RecordingDuration")),
		CallSID:         strings.TrimSpace(r.PostFormValue("CallSid")),
	}
	if f.RecordingSID == "" || f.CallSID == "" {
		return RecordingCallbackForm{}, fmt.Errorf("%w: RecordingSid and CallSid are required", ErrValidation)
	}
	return f, nil
}

// InboundCallForm captures the voice webhook for a call arriving at our
// number.
type InboundCallForm struct {
	CallSID string
	From    string
	To      string
}

func ParseInboundCall(r *http.Request) (InboundCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCallForm{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	f := InboundCallForm{
		CallSID: strings.TrimSpace(r.PostFormValue("CallSid")),
		From:    strings.TrimSpace(r.PostFormValue("From")),
		To:      strings.TrimSpace(r.PostFormValue("To")),
	}
	if f.CallSID == "" || f.From == "" {
		return InboundCallForm{}, fmt.Errorf("%w: CallSid and From are required", ErrValidation)
	}
	return f, nil
}

// InboundMessageForm captures an inbound SMS webhook.
type InboundMessageForm struct {
	MessageSID string
	From       string
	Body       string
}

func ParseInboundMessage(r *http.Request) (InboundMessageForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessageForm{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	f := InboundMessageForm{
		MessageSID: strings.TrimSpace(r.PostFormValue("MessageSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		Body:       r.PostFormValue("Body"),
	}
	if f.MessageSID == "" || f.From == "" {
		return InboundMessageForm{}, fmt.Errorf("%w: MessageSid and From are required", ErrValidation)
	}
	return f, nil
}

// MessageStatusForm captures a message delivery-status webhook.
type MessageStatusForm struct {
	MessageSID    string
	MessageStatus string
}

func ParseMessageStatus(r *http.Request) (MessageStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return MessageStatusForm{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	f := MessageStatusForm{
		MessageSID:    strings.TrimSpace(r.PostFormValue("MessageSid")),
		MessageStatus: strings.TrimSpace(r.PostFormValue("MessageStatus")),
	}
	if f.MessageSID == "" || f.MessageStatus == "" {
		return MessageStatusForm{}, fmt.Errorf("%w: MessageSid and MessageStatus are required", ErrValidation)
	}
	return f, nil
}

// MapProviderStatus translates the provider's status vocabulary into the
// internal lifecycle states. Unknown statuses map to ok=false and are
// ignored by callers (acknowledged, never errored, so the provider does not
// retry-storm).
func MapProviderStatus(status string) (callstate.State, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "initiated":
		return callstate.StateInitiated, true
	case "ringing":
		return callstate.StateRinging, true
	case "in-progress", "answered":
		return callstate.StateInProgress, true
	case "completed":
		return callstate.StateCompleted, true
	case "busy":
		return callstate.StateBusy, true
	case "no-answer":
		return callstate.StateNoAnswer, true
	case "canceled":
		return callstate.StateCanceled, true
	case "failed":
		return callstate.StateFailed, true
	default:
		return "", false
	}
}

func parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return callstate.DurationUnknown
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return callstate.DurationUnknown
	}
	return n
}
