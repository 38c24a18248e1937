package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"academy-caller/internal/callstate"
	"academy-caller/internal/push"
	"academy-caller/internal/telephony"
)

type fakeProvider struct {
	placeSID string
	placeErr error
	placed   []telephony.PlaceCallRequest

	completeErr error
	completed   []string

	fetchRes   telephony.CallStatusResult
	fetchErr   error
	fetchCalls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	p.placed = append(p.placed, req)
	if p.placeErr != nil {
		return telephony.PlaceCallResult{}, p.placeErr
	}
	return telephony.PlaceCallResult{CallSID: p.placeSID}, nil
}

func (p *fakeProvider) CompleteCall(ctx context.Context, callSID string) error {
	p.completed = append(p.completed, callSID)
	return p.completeErr
}

func (p *fakeProvider) FetchCallStatus(ctx context.Context, callSID string) (telephony.CallStatusResult, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return telephony.CallStatusResult{}, p.fetchErr
	}
	return p.fetchRes, nil
}

func (p *fakeProvider) SendMessage(ctx context.Context, req telephony.SendMessageRequest) (telephony.SendMessageResult, error) {
	return telephony.SendMessageResult{}, errors.New("not implemented")
}

func (p *fakeProvider) ListRecordings(ctx context.Context, callSID string) ([]telephony.Recording, error) {
	return nil, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []push.Event
}

func (s *eventSink) Publish(e push.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) all() []push.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]push.Event, len(s.events))
	copy(out, s.events)
	return out
}

type fakeRoster map[string]string

func (r fakeRoster) NameByPhone(ctx context.Context, phone string) (string, error) {
	name, ok := r[phone]
	if !ok {
		return "", errors.New("roster: not found")
	}
	return name, nil
}

type testEnv struct {
	svc   *Service
	store *callstate.Store
	sink  *eventSink
	repo  *MemoryRepo
	prov  *fakeProvider
	now   *time.Time
}

func newTestEnv(t *testing.T, prov *fakeProvider, roster NameLookup) *testEnv {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := func() time.Time { return now }

	store := callstate.NewStore(callstate.WithClock(clk))
	sink := &eventSink{}
	repo := NewMemoryRepo()
	opts := Options{
		FromNumber:         "+15550100",
		CallbackBaseURL:    "https://calls.example.test",
		RecordCalls:        true,
		TerminalRetention:  time.Hour,
		MaxRecordAge:       24 * time.Hour,
		InboundRingTimeout: 45 * time.Second,
	}
	svc := NewService(store, prov, sink, repo, roster, opts, nil,
		WithClock(clk),
		WithAfterFunc(func(d time.Duration, f func()) *time.Timer { return nil }),
	)
	return &testEnv{svc: svc, store: store, sink: sink, repo: repo, prov: prov, now: &now}
}

func statusForm(sid, status string, duration int) telephony.StatusCallbackForm {
	return telephony.StatusCallbackForm{CallSID: sid, CallStatus: status, DurationSeconds: duration}
}

func TestPlaceCall_CreatesRecordAndNotifies(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA100"}
	env := newTestEnv(t, prov, nil)

	rec, err := env.svc.PlaceCall(context.Background(), "+15550111", "Dana")
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if rec.ID != "CA100" || rec.State != callstate.StateInitiated {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Direction != callstate.DirectionOutbound {
		t.Fatalf("direction = %s", rec.Direction)
	}

	if len(prov.placed) != 1 {
		t.Fatalf("placed %d calls", len(prov.placed))
	}
	req := prov.placed[0]
	if req.To != "+15550111" || req.From != "+15550100" {
		t.Fatalf("unexpected place request %+v", req)
	}
	if req.StatusCallbackURL != "https://calls.example.test/webhooks/voice/status" {
		t.Fatalf("status callback url = %s", req.StatusCallbackURL)
	}
	if !req.Record || req.RecordingCallbackURL == "" {
		t.Fatalf("recording not requested: %+v", req)
	}

	events := env.sink.all()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].Type != push.EventCallStatus || events[0].CallID != "CA100" || events[0].Status != "initiated" {
		t.Fatalf("unexpected event %+v", events[0])
	}

	if _, err := env.repo.Get(context.Background(), "CA100"); err != nil {
		t.Fatalf("call log: %v", err)
	}
}

func TestPlaceCall_ProviderFailureLeavesNoRecord(t *testing.T) {
	prov := &fakeProvider{placeErr: &telephony.ProviderError{Code: 21211, Message: "invalid number"}}
	env := newTestEnv(t, prov, nil)

	_, err := env.svc.PlaceCall(context.Background(), "+0", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *telephony.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error does not carry provider detail: %v", err)
	}
	if env.store.Len() != 0 {
		t.Fatalf("store has %d records, want 0", env.store.Len())
	}
	if len(env.sink.all()) != 0 {
		t.Fatal("no events should be published on failed placement")
	}
}

func TestPlaceCall_ResolvesDisplayNameFromRoster(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA101"}
	env := newTestEnv(t, prov, fakeRoster{"+15550111": "Dana Kim"})

	rec, err := env.svc.PlaceCall(context.Background(), "+15550111", "")
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if rec.DisplayName != "Dana Kim" {
		t.Fatalf("display name = %q", rec.DisplayName)
	}
}

func TestStatusCallback_LifecycleAndDuplicates(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA200"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}

	env.svc.HandleStatusCallback(ctx, statusForm("CA200", "ringing", callstate.DurationUnknown))
	env.svc.HandleStatusCallback(ctx, statusForm("CA200", "in-progress", callstate.DurationUnknown))
	env.svc.HandleStatusCallback(ctx, statusForm("CA200", "completed", 42))
	// Provider retries the terminal webhook.
	env.svc.HandleStatusCallback(ctx, statusForm("CA200", "completed", 42))

	rec, err := env.store.Get("CA200")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != callstate.StateCompleted || rec.DurationSeconds != 42 {
		t.Fatalf("record = %+v", rec)
	}

	events := env.sink.all()
	// initiated + ringing + in_progress + completed, the retry suppressed.
	if len(events) != 4 {
		t.Fatalf("published %d events, want 4: %+v", len(events), events)
	}
	last := events[3]
	if last.Status != "completed" || last.DurationSeconds != 42 {
		t.Fatalf("last event = %+v", last)
	}

	logged, err := env.repo.Get(ctx, "CA200")
	if err != nil {
		t.Fatalf("call log: %v", err)
	}
	if logged.State != callstate.StateCompleted {
		t.Fatalf("logged state = %s", logged.State)
	}
}

func TestStatusCallback_UnknownCallRebuildsRecord(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, nil)

	env.svc.HandleStatusCallback(context.Background(), statusForm("CA999", "in-progress", callstate.DurationUnknown))

	rec, err := env.store.Get("CA999")
	if err != nil {
		t.Fatalf("record not rebuilt: %v", err)
	}
	if rec.State != callstate.StateInProgress {
		t.Fatalf("state = %s", rec.State)
	}
}

func TestStatusCallback_UnmappedStatusIgnored(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA201"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA201", "weird-status", callstate.DurationUnknown))

	rec, _ := env.store.Get("CA201")
	if rec.State != callstate.StateInitiated {
		t.Fatalf("state moved on unmapped status: %s", rec.State)
	}
}

func TestHangup_NeverAnsweredHasZeroDuration(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA300", completeErr: errors.New("provider down")}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA300", "ringing", callstate.DurationUnknown))

	rec, err := env.svc.Hangup(ctx, "CA300")
	if err != nil {
		t.Fatalf("Hangup must not surface the provider failure: %v", err)
	}
	if rec.State != callstate.StateCompleted || rec.DurationSeconds != 0 {
		t.Fatalf("record = %+v", rec)
	}
	if len(prov.completed) != 1 || prov.completed[0] != "CA300" {
		t.Fatalf("provider teardown not attempted: %v", prov.completed)
	}

	events := env.sink.all()
	if events[len(events)-1].Status != "completed" {
		t.Fatalf("last event = %+v", events[len(events)-1])
	}

	// A second hangup is a no-op on a terminal record.
	before := len(env.sink.all())
	if _, err := env.svc.Hangup(ctx, "CA300"); err != nil {
		t.Fatalf("repeat Hangup: %v", err)
	}
	if len(prov.completed) != 1 {
		t.Fatal("terminal hangup must not call the provider again")
	}
	if len(env.sink.all()) != before {
		t.Fatal("terminal hangup must not publish")
	}
}

func TestHangup_AnsweredComputesDurationLocally(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA301"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA301", "in-progress", callstate.DurationUnknown))

	*env.now = env.now.Add(90 * time.Second)
	rec, err := env.svc.Hangup(ctx, "CA301")
	if err != nil {
		t.Fatalf("Hangup: %v", err)
	}
	if rec.DurationSeconds != 90 {
		t.Fatalf("duration = %d, want 90", rec.DurationSeconds)
	}
}

func TestGetCall_ReconcilesAgainstProvider(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA400"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA400", "ringing", callstate.DurationUnknown))

	// The no-answer webhook was lost; the poll path discovers it.
	prov.fetchRes = telephony.CallStatusResult{Status: "no-answer"}
	rec, err := env.svc.GetCall(ctx, "CA400")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if rec.State != callstate.StateNoAnswer || rec.DurationSeconds != 0 {
		t.Fatalf("record = %+v", rec)
	}

	events := env.sink.all()
	if events[len(events)-1].Status != "no_answer" {
		t.Fatalf("reconcile did not publish: %+v", events)
	}

	// Terminal records are served from memory without touching the provider.
	calls := prov.fetchCalls
	if _, err := env.svc.GetCall(ctx, "CA400"); err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if prov.fetchCalls != calls {
		t.Fatal("terminal read must not query the provider")
	}
}

func TestGetCall_ProviderFailureFallsBackToCached(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA401", fetchErr: errors.New("timeout")}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}

	rec, err := env.svc.GetCall(ctx, "CA401")
	if err != nil {
		t.Fatalf("GetCall must degrade to cached state: %v", err)
	}
	if rec.State != callstate.StateInitiated {
		t.Fatalf("state = %s", rec.State)
	}
}

func TestGetCall_UnknownID(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, nil)
	if _, err := env.svc.GetCall(context.Background(), "nope"); !errors.Is(err, callstate.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInboundCall_KnownCallerHeldThenExpires(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, fakeRoster{"+15550122": "Omar"})
	ctx := context.Background()

	action := env.svc.HandleInboundCall(ctx, telephony.InboundCallForm{CallSID: "CAIN1", From: "+15550122", To: "+15550100"})
	if action != telephony.InboundActionHold {
		t.Fatalf("action = %s, want hold", action)
	}

	rec, err := env.store.Get("CAIN1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Direction != callstate.DirectionInbound || rec.State != callstate.StateRinging {
		t.Fatalf("record = %+v", rec)
	}
	if rec.DisplayName != "Omar" {
		t.Fatalf("display name = %q", rec.DisplayName)
	}

	events := env.sink.all()
	if len(events) != 1 || events[0].Status != "ringing" {
		t.Fatalf("events = %+v", events)
	}

	env.svc.ExpireInbound("CAIN1")
	rec, _ = env.store.Get("CAIN1")
	if rec.State != callstate.StateCanceled {
		t.Fatalf("state = %s, want canceled", rec.State)
	}
	events = env.sink.all()
	if events[len(events)-1].Status != "canceled" {
		t.Fatalf("expiry not published: %+v", events)
	}

	// A late expiry fire after the terminal state is silent.
	before := len(env.sink.all())
	env.svc.ExpireInbound("CAIN1")
	if len(env.sink.all()) != before {
		t.Fatal("repeat expiry must not publish")
	}
}

func TestInboundCall_ExpiryLosesToAnswer(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, fakeRoster{"+15550122": "Omar"})
	ctx := context.Background()

	env.svc.HandleInboundCall(ctx, telephony.InboundCallForm{CallSID: "CAIN2", From: "+15550122"})
	env.svc.HandleStatusCallback(ctx, statusForm("CAIN2", "in-progress", callstate.DurationUnknown))

	env.svc.ExpireInbound("CAIN2")
	rec, _ := env.store.Get("CAIN2")
	if rec.State != callstate.StateInProgress {
		t.Fatalf("expiry overrode an answered call: %s", rec.State)
	}
}

func TestInboundCall_UnknownCallerRejected(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, fakeRoster{})
	action := env.svc.HandleInboundCall(context.Background(), telephony.InboundCallForm{CallSID: "CAIN3", From: "+19998887777"})
	if action != telephony.InboundActionReject {
		t.Fatalf("action = %s, want reject", action)
	}
	if _, err := env.store.Get("CAIN3"); err != nil {
		t.Fatalf("rejected call should still be tracked: %v", err)
	}
}

func TestRecordingCallback_AnnotatesAndNotifies(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA500"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA500", "completed", 30))

	env.svc.HandleRecordingCallback(ctx, telephony.RecordingCallbackForm{
		RecordingSID:    "RE1",
		CallSID:         "CA500",
		RecordingURL:    "https://api.example.test/RE1.mp3",
		RecordingStatus: "completed",
		DurationSeconds: 29,
	})

	rec, _ := env.store.Get("CA500")
	if rec.RecordingURL != "https://api.example.test/RE1.mp3" {
		t.Fatalf("recording url = %q", rec.RecordingURL)
	}
	if rec.State != callstate.StateCompleted {
		t.Fatalf("annotation changed lifecycle state: %s", rec.State)
	}

	events := env.sink.all()
	last := events[len(events)-1]
	if last.Type != push.EventRecordingReady || last.CallID != "CA500" || last.URL == "" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestCollectStale(t *testing.T) {
	prov := &fakeProvider{placeSID: "CA600"}
	env := newTestEnv(t, prov, nil)
	ctx := context.Background()

	if _, err := env.svc.PlaceCall(ctx, "+15550111", ""); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	env.svc.HandleStatusCallback(ctx, statusForm("CA600", "completed", 10))

	if n := env.svc.CollectStale(env.now.Add(30 * time.Minute)); n != 0 {
		t.Fatalf("collected %d records before retention elapsed", n)
	}
	if n := env.svc.CollectStale(env.now.Add(2 * time.Hour)); n != 1 {
		t.Fatalf("collected %d records, want 1", n)
	}
	if _, err := env.store.Get("CA600"); !errors.Is(err, callstate.ErrNotFound) {
		t.Fatalf("record survived collection: %v", err)
	}

	// The durable log is untouched by GC.
	if _, err := env.repo.Get(ctx, "CA600"); err != nil {
		t.Fatalf("call log lost the record: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, nil)
	ctx := context.Background()
	base := *env.now

	seed := []callstate.Record{
		{ID: "c1", Direction: callstate.DirectionOutbound, State: callstate.StateCompleted, DurationSeconds: 60, RecordingURL: "u", CreatedAt: base},
		{ID: "c2", Direction: callstate.DirectionOutbound, State: callstate.StateNoAnswer, CreatedAt: base.Add(time.Minute)},
		{ID: "c3", Direction: callstate.DirectionInbound, State: callstate.StateCanceled, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c4", Direction: callstate.DirectionOutbound, State: callstate.StateCompleted, DurationSeconds: 30, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "old", Direction: callstate.DirectionOutbound, State: callstate.StateCompleted, DurationSeconds: 999, CreatedAt: base.Add(-time.Hour)},
	}
	for _, rec := range seed {
		if err := env.repo.Save(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	sum, err := env.svc.Summarize(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalCalls != 4 || sum.CompletedCalls != 2 || sum.NoAnswerCalls != 1 || sum.CanceledCalls != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.InboundCalls != 1 || sum.OutboundCalls != 3 {
		t.Fatalf("direction split = %+v", sum)
	}
	if sum.TotalDurationSeconds != 90 || sum.AverageDurationSeconds != 22 {
		t.Fatalf("durations = %+v", sum)
	}
	if sum.RecordedCalls != 1 {
		t.Fatalf("recorded = %d", sum.RecordedCalls)
	}

	if _, err := env.svc.Summarize(ctx, base.Add(time.Hour), base); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("inverted range err = %v", err)
	}
}
