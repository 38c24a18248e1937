package calls

import (
	"context"
	"errors"
	"time"

	"academy-caller/internal/callstate"
)

// Summary aggregates the durable call log over a time range.
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	TotalCalls    int `json:"total_calls"`
	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`
	BusyCalls      int `json:"busy_calls"`
	CanceledCalls  int `json:"canceled_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
	RecordedCalls          int `json:"recorded_calls"`
}

// Summarize computes call counts and durations over [from, to).
func (s *Service) Summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("calls: repository not configured")
	}

	rows, err := s.repo.List(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{From: from, To: to}
	for _, rec := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += rec.DurationSeconds
		if rec.RecordingURL != "" {
			out.RecordedCalls++
		}
		if rec.Direction == callstate.DirectionInbound {
			out.InboundCalls++
		} else {
			out.OutboundCalls++
		}
		switch rec.State {
		case callstate.StateCompleted:
			out.CompletedCalls++
		case callstate.StateFailed:
			out.FailedCalls++
		case callstate.StateNoAnswer:
			out.NoAnswerCalls++
		case callstate.StateBusy:
			out.BusyCalls++
		case callstate.StateCanceled:
			out.CanceledCalls++
		case callstate.StateInitiated, callstate.StateRinging, callstate.StateInProgress:
			// still in flight, counted only in the totals
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}
