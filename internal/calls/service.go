package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"academy-caller/internal/callstate"
	"academy-caller/internal/metrics"
	"academy-caller/internal/push"
	"academy-caller/internal/telephony"
)

var ErrInvalidRequest = errors.New("calls: invalid request")

// Publisher fans a push event out to connected observers.
type Publisher interface {
	Publish(push.Event)
}

// NameLookup resolves a phone number to a display name, typically backed
// by the student roster. A lookup miss is not an error condition for call
// handling; callers fall back to the raw number.
type NameLookup interface {
	NameByPhone(ctx context.Context, phone string) (string, error)
}

// Options carries the call-flow tunables lifted from configuration.
type Options struct {
	FromNumber      string
	CallbackBaseURL string

	// RecordCalls enables provider-side recording on outbound calls.
	RecordCalls bool

	TerminalRetention  time.Duration
	MaxRecordAge       time.Duration
	InboundRingTimeout time.Duration
}

// Service is the call lifecycle controller. Placement, webhook delivery,
// poll-reconcile and hangup all funnel their state transitions through the
// store's single mutation gate; the service adds provider I/O, durable
// logging and push notification around it.
type Service struct {
	store    *callstate.Store
	provider telephony.Provider
	pub      Publisher
	repo     Repository
	names    NameLookup
	opts     Options
	log      *slog.Logger

	clock callstate.Clock
	after func(time.Duration, func()) *time.Timer
}

type ServiceOption func(*Service)

// WithClock sets the time source for the service.
func WithClock(c callstate.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithAfterFunc replaces the inbound ring timer scheduler. Tests pass a
// no-op and drive expiry directly through ExpireInbound.
func WithAfterFunc(f func(time.Duration, func()) *time.Timer) ServiceOption {
	return func(s *Service) { s.after = f }
}

func NewService(store *callstate.Store, provider telephony.Provider, pub Publisher, repo Repository, names NameLookup, opts Options, log *slog.Logger, sopts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		store:    store,
		provider: provider,
		pub:      pub,
		repo:     repo,
		names:    names,
		opts:     opts,
		log:      log,
		clock:    time.Now,
		after:    time.AfterFunc,
	}
	for _, o := range sopts {
		o(s)
	}
	return s
}

// PlaceCall asks the provider to dial out and, on success, registers the
// new record and notifies observers. A provider failure leaves no record
// behind: there is nothing to track and nothing for GC to clean up.
func (s *Service) PlaceCall(ctx context.Context, to, displayName string) (callstate.Record, error) {
	if to == "" {
		return callstate.Record{}, fmt.Errorf("%w: destination number required", ErrInvalidRequest)
	}
	if displayName == "" && s.names != nil {
		if name, err := s.names.NameByPhone(ctx, to); err == nil {
			displayName = name
		}
	}

	req := telephony.PlaceCallRequest{
		To:                to,
		From:              s.opts.FromNumber,
		AnswerURL:         s.opts.CallbackBaseURL + "/webhooks/voice/answer",
		StatusCallbackURL: s.opts.CallbackBaseURL + "/webhooks/voice/status",
	}
	if s.opts.RecordCalls {
		req.Record = true
		req.RecordingCallbackURL = s.opts.CallbackBaseURL + "/webhooks/voice/recording"
	}

	res, err := s.provider.PlaceCall(ctx, req)
	if err != nil {
		metrics.CallsPlaced.WithLabelValues("error").Inc()
		return callstate.Record{}, fmt.Errorf("place call to %s: %w", to, err)
	}
	metrics.CallsPlaced.WithLabelValues("ok").Inc()

	rec, err := s.store.Create(res.CallSID, to, displayName, callstate.DirectionOutbound)
	if err != nil {
		// Provider handed back a SID we already track; treat the existing
		// record as authoritative.
		if errors.Is(err, callstate.ErrAlreadyExists) {
			return s.store.Get(res.CallSID)
		}
		return callstate.Record{}, err
	}

	if err := s.persist(ctx, rec); err != nil {
		s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
	}
	s.publish(rec)
	s.log.Info("call placed", "call_id", rec.ID, "to", to, "provider", s.provider.Name())
	return rec, nil
}

// HandleStatusCallback applies one provider status webhook. Unknown status
// values and out-of-order or duplicate deliveries are absorbed silently;
// the webhook surface always acks so the provider stops retrying.
func (s *Service) HandleStatusCallback(ctx context.Context, f telephony.StatusCallbackForm) {
	st, ok := telephony.MapProviderStatus(f.CallStatus)
	if !ok {
		metrics.WebhookEvents.WithLabelValues("status_unknown").Inc()
		s.log.Warn("unmapped provider status", "call_id", f.CallSID, "status", f.CallStatus)
		return
	}
	metrics.WebhookEvents.WithLabelValues("status").Inc()

	extra := callstate.Extra{DurationSeconds: f.DurationSeconds, RecordingURL: f.RecordingURL}
	changed, rec, err := s.store.ApplyIfLegal(f.CallSID, st, s.clock(), extra)
	if errors.Is(err, callstate.ErrNotFound) {
		// A webhook for a call we do not track, typically after a restart.
		// Rebuild the record from the webhook rather than dropping it.
		rec, err = s.store.Create(f.CallSID, "", "", callstate.DirectionOutbound)
		if err != nil {
			s.log.Warn("rebuild from webhook failed", "call_id", f.CallSID, "error", err)
			return
		}
		changed, rec, err = s.store.ApplyIfLegal(f.CallSID, st, s.clock(), extra)
	}
	if err != nil {
		s.log.Warn("status webhook rejected", "call_id", f.CallSID, "status", f.CallStatus, "error", err)
		return
	}
	if !changed {
		return
	}
	if err := s.persist(ctx, rec); err != nil {
		s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
	}
	s.publish(rec)
}

// GetCall returns the current record, reconciling against the provider
// first when the call is still live. Webhooks can be delayed or lost; the
// poll path closes that gap. A provider failure degrades to the cached
// record instead of failing the read.
func (s *Service) GetCall(ctx context.Context, id string) (callstate.Record, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return callstate.Record{}, err
	}
	if rec.State.IsTerminal() {
		return rec, nil
	}

	res, err := s.provider.FetchCallStatus(ctx, id)
	if err != nil {
		s.log.Warn("status reconcile failed", "call_id", id, "error", err)
		return rec, nil
	}
	st, ok := telephony.MapProviderStatus(res.Status)
	if !ok {
		s.log.Warn("unmapped provider status", "call_id", id, "status", res.Status)
		return rec, nil
	}

	extra := callstate.NoExtra
	if st.IsTerminal() && res.DurationSeconds > 0 {
		extra.DurationSeconds = res.DurationSeconds
	}
	changed, rec, err := s.store.ApplyIfLegal(id, st, s.clock(), extra)
	if err != nil {
		return callstate.Record{}, err
	}
	if changed {
		if err := s.persist(ctx, rec); err != nil {
			s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
		}
		s.publish(rec)
	}
	return rec, nil
}

// Hangup terminates a call on the operator's request. The local record is
// moved to completed first so the browser sees the result immediately; the
// provider-side teardown is best effort, because the worst case of a failed
// teardown is a webhook that the terminal state then absorbs.
func (s *Service) Hangup(ctx context.Context, id string) (callstate.Record, error) {
	cur, err := s.store.Get(id)
	if err != nil {
		return callstate.Record{}, err
	}
	if cur.State.IsTerminal() {
		return cur, nil
	}

	now := s.clock()
	extra := callstate.NoExtra
	if cur.AnsweredAt != nil {
		d := int(now.Sub(*cur.AnsweredAt) / time.Second)
		if d < 0 {
			d = 0
		}
		extra.DurationSeconds = d
	} else {
		extra.DurationSeconds = 0
	}

	changed, rec, err := s.store.ApplyIfLegal(id, callstate.StateCompleted, now, extra)
	if err != nil {
		return callstate.Record{}, err
	}
	if changed {
		if err := s.persist(ctx, rec); err != nil {
			s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
		}
		s.publish(rec)
	}

	if err := s.provider.CompleteCall(ctx, id); err != nil {
		s.log.Warn("provider hangup failed", "call_id", id, "error", err)
	}
	return rec, nil
}

// HandleRecordingCallback annotates a call with its finished recording and
// notifies observers subscribed to that call.
func (s *Service) HandleRecordingCallback(ctx context.Context, f telephony.RecordingCallbackForm) {
	if f.RecordingStatus != "" && f.RecordingStatus != "completed" {
		return
	}
	metrics.WebhookEvents.WithLabelValues("recording").Inc()

	rec, err := s.store.AttachRecording(f.CallSID, f.RecordingURL, f.DurationSeconds)
	if err != nil {
		s.log.Warn("recording for unknown call", "call_id", f.CallSID, "recording_sid", f.RecordingSID)
		return
	}
	if err := s.persist(ctx, rec); err != nil {
		s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
	}
	s.pub.Publish(push.RecordingReadyEvent(rec.ID, rec.RecordingURL, f.DurationSeconds))
}

// HandleInboundCall registers a call arriving at our number, notifies
// observers so someone can pick up from the browser, and decides the
// provider instruction: hold callers we recognize from the roster, reject
// the rest. A ring timer cancels the record if nobody answers.
func (s *Service) HandleInboundCall(ctx context.Context, f telephony.InboundCallForm) telephony.InboundAction {
	displayName := ""
	known := false
	if s.names != nil {
		if name, err := s.names.NameByPhone(ctx, f.From); err == nil {
			displayName = name
			known = true
		}
	}
	metrics.WebhookEvents.WithLabelValues("inbound_call").Inc()

	rec, err := s.store.Create(f.CallSID, f.From, displayName, callstate.DirectionInbound)
	if err != nil {
		// Provider retry of the same webhook; the first delivery won.
		if !errors.Is(err, callstate.ErrAlreadyExists) {
			s.log.Warn("inbound call rejected", "call_id", f.CallSID, "error", err)
			return telephony.InboundActionReject
		}
		if known {
			return telephony.InboundActionHold
		}
		return telephony.InboundActionReject
	}

	// The inbound record starts at ringing: the callee side is us, and the
	// caller is already waiting.
	_, rec, err = s.store.ApplyIfLegal(f.CallSID, callstate.StateRinging, s.clock(), callstate.NoExtra)
	if err != nil {
		s.log.Warn("inbound ringing transition failed", "call_id", f.CallSID, "error", err)
	}
	if err := s.persist(ctx, rec); err != nil {
		s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
	}
	s.publish(rec)
	s.log.Info("inbound call", "call_id", rec.ID, "from", f.From, "known", known)

	s.after(s.opts.InboundRingTimeout, func() { s.ExpireInbound(rec.ID) })

	if known {
		return telephony.InboundActionHold
	}
	return telephony.InboundActionReject
}

// ExpireInbound cancels an inbound call nobody answered within the ring
// timeout. If the call advanced past ringing in the meantime the transition
// is illegal by rank and nothing happens.
func (s *Service) ExpireInbound(id string) {
	changed, rec, err := s.store.ApplyIfLegal(id, callstate.StateCanceled, s.clock(), callstate.NoExtra)
	if err != nil || !changed {
		return
	}
	if err := s.persist(context.Background(), rec); err != nil {
		s.log.Warn("call log write failed", "call_id", rec.ID, "error", err)
	}
	s.publish(rec)
	s.log.Info("inbound call expired", "call_id", id)
}

// ListActive returns all calls still in flight.
func (s *Service) ListActive() []callstate.Record {
	return s.store.ListActive()
}

// ListRecordings proxies the provider's recording index for one call.
func (s *Service) ListRecordings(ctx context.Context, id string) ([]telephony.Recording, error) {
	if _, err := s.store.Get(id); err != nil {
		// The live record may already be collected; fall through to the
		// provider only for ids we have durably logged.
		if s.repo == nil {
			return nil, err
		}
		if _, rerr := s.repo.Get(ctx, id); rerr != nil {
			return nil, err
		}
	}
	return s.provider.ListRecordings(ctx, id)
}

// CollectStale drops records past their retention windows. Wired to the
// periodic scheduler; also callable directly from tests.
func (s *Service) CollectStale(now time.Time) int {
	ids := s.store.ListStale(now, s.opts.TerminalRetention, s.opts.MaxRecordAge)
	for _, id := range ids {
		s.store.Delete(id)
	}
	if len(ids) > 0 {
		s.log.Info("collected stale call records", "count", len(ids))
	}
	return len(ids)
}

func (s *Service) publish(rec callstate.Record) {
	s.pub.Publish(push.CallStatusEvent(rec.ID, string(rec.State), rec.DurationSeconds, rec.RecordingURL))
}

func (s *Service) persist(ctx context.Context, rec callstate.Record) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Save(ctx, rec)
}
