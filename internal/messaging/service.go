package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"academy-caller/internal/metrics"
	"academy-caller/internal/telephony"
)

// Options carries the SMS tunables lifted from configuration.
type Options struct {
	FromNumber      string
	CallbackBaseURL string
}

// Service handles SMS sending, inbound delivery and conversation listing.
type Service struct {
	provider telephony.Provider
	repo     Repository
	unread   UnreadCounter
	opts     Options
	log      *slog.Logger
	clock    func() time.Time
}

type ServiceOption func(*Service)

func WithClock(c func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func NewService(provider telephony.Provider, repo Repository, unread UnreadCounter, opts Options, log *slog.Logger, sopts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		provider: provider,
		repo:     repo,
		unread:   unread,
		opts:     opts,
		log:      log,
		clock:    time.Now,
	}
	for _, o := range sopts {
		o(s)
	}
	return s
}

// Send submits one outbound SMS through the provider and records it.
func (s *Service) Send(ctx context.Context, to, body string) (Message, error) {
	if to == "" || body == "" {
		return Message{}, fmt.Errorf("%w: destination and body required", ErrInvalidRequest)
	}

	res, err := s.provider.SendMessage(ctx, telephony.SendMessageRequest{
		To:                to,
		From:              s.opts.FromNumber,
		Body:              body,
		StatusCallbackURL: s.opts.CallbackBaseURL + "/webhooks/sms/status",
	})
	if err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		return Message{}, fmt.Errorf("send message to %s: %w", to, err)
	}
	metrics.MessagesSent.WithLabelValues("ok").Inc()

	now := s.clock()
	m := Message{
		ID:           res.MessageSID,
		Counterparty: to,
		Direction:    DirectionOutbound,
		Body:         body,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Save(ctx, m); err != nil {
		s.log.Warn("sms log write failed", "message_id", m.ID, "error", err)
	}
	s.log.Info("message sent", "message_id", m.ID, "to", to)
	return m, nil
}

// HandleInbound records a message arriving at our number and bumps the
// conversation's unread counter.
func (s *Service) HandleInbound(ctx context.Context, f telephony.InboundMessageForm) {
	metrics.WebhookEvents.WithLabelValues("inbound_sms").Inc()

	now := s.clock()
	m := Message{
		ID:           f.MessageSID,
		Counterparty: f.From,
		Direction:    DirectionInbound,
		Body:         f.Body,
		Status:       StatusReceived,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Save(ctx, m); err != nil {
		s.log.Warn("sms log write failed", "message_id", m.ID, "error", err)
		return
	}
	if err := s.unread.Increment(ctx, f.From); err != nil {
		s.log.Warn("unread counter increment failed", "counterparty", f.From, "error", err)
	}
	s.log.Info("message received", "message_id", m.ID, "from", f.From)
}

// HandleStatus applies one provider delivery-status webhook. Unknown status
// values and unknown message ids are absorbed; the webhook surface always
// acks.
func (s *Service) HandleStatus(ctx context.Context, f telephony.MessageStatusForm) {
	st, ok := MapProviderMessageStatus(f.MessageStatus)
	if !ok {
		s.log.Warn("unmapped message status", "message_id", f.MessageSID, "status", f.MessageStatus)
		return
	}
	metrics.WebhookEvents.WithLabelValues("sms_status").Inc()

	if err := s.repo.UpdateStatus(ctx, f.MessageSID, st, s.clock()); err != nil {
		s.log.Warn("message status update failed", "message_id", f.MessageSID, "error", err)
	}
}

// History returns the messages exchanged with one counterparty, oldest
// first, and resets the conversation's unread counter: opening the thread
// is what reading means here.
func (s *Service) History(ctx context.Context, counterparty string, limit int) ([]Message, error) {
	if counterparty == "" {
		return nil, fmt.Errorf("%w: counterparty required", ErrInvalidRequest)
	}
	msgs, err := s.repo.ListByCounterparty(ctx, counterparty, limit)
	if err != nil {
		return nil, err
	}
	if err := s.unread.Reset(ctx, counterparty); err != nil {
		s.log.Warn("unread counter reset failed", "counterparty", counterparty, "error", err)
	}
	return msgs, nil
}

// Conversations lists every counterparty with their latest message and
// unread count, most recent first.
func (s *Service) Conversations(ctx context.Context) ([]Conversation, error) {
	latest, err := s.repo.ListLatest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(latest))
	for _, m := range latest {
		n, err := s.unread.Get(ctx, m.Counterparty)
		if err != nil {
			s.log.Warn("unread counter read failed", "counterparty", m.Counterparty, "error", err)
			n = 0
		}
		out = append(out, Conversation{Counterparty: m.Counterparty, LastMessage: m, Unread: n})
	}
	return out, nil
}
