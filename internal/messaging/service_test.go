package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"academy-caller/internal/telephony"
)

type fakeSMSProvider struct {
	sid     string
	sendErr error
	sent    []telephony.SendMessageRequest
}

func (p *fakeSMSProvider) Name() string { return "fake" }

func (p *fakeSMSProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	return telephony.PlaceCallResult{}, errors.New("not implemented")
}

func (p *fakeSMSProvider) CompleteCall(ctx context.Context, callSID string) error {
	return errors.New("not implemented")
}

func (p *fakeSMSProvider) FetchCallStatus(ctx context.Context, callSID string) (telephony.CallStatusResult, error) {
	return telephony.CallStatusResult{}, errors.New("not implemented")
}

func (p *fakeSMSProvider) SendMessage(ctx context.Context, req telephony.SendMessageRequest) (telephony.SendMessageResult, error) {
	p.sent = append(p.sent, req)
	if p.sendErr != nil {
		return telephony.SendMessageResult{}, p.sendErr
	}
	return telephony.SendMessageResult{MessageSID: p.sid}, nil
}

func (p *fakeSMSProvider) ListRecordings(ctx context.Context, callSID string) ([]telephony.Recording, error) {
	return nil, nil
}

func newTestService(prov *fakeSMSProvider) (*Service, *MemoryRepo, *MemoryUnreadCounter, *time.Time) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	unread := NewMemoryUnreadCounter()
	opts := Options{FromNumber: "+15550100", CallbackBaseURL: "https://calls.example.test"}
	svc := NewService(prov, repo, unread, opts, nil, WithClock(func() time.Time { return now }))
	return svc, repo, unread, &now
}

func TestSend(t *testing.T) {
	prov := &fakeSMSProvider{sid: "SM1"}
	svc, repo, _, _ := newTestService(prov)

	m, err := svc.Send(context.Background(), "+15550133", "lesson moved to 5pm")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.ID != "SM1" || m.Direction != DirectionOutbound || m.Status != StatusQueued {
		t.Fatalf("message = %+v", m)
	}

	if len(prov.sent) != 1 {
		t.Fatalf("sent %d messages", len(prov.sent))
	}
	req := prov.sent[0]
	if req.From != "+15550100" || req.To != "+15550133" {
		t.Fatalf("request = %+v", req)
	}
	if req.StatusCallbackURL != "https://calls.example.test/webhooks/sms/status" {
		t.Fatalf("status callback url = %s", req.StatusCallbackURL)
	}

	msgs, err := repo.ListByCounterparty(context.Background(), "+15550133", 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("history = %v, %v", msgs, err)
	}
}

func TestSend_ProviderFailureLeavesNoMessage(t *testing.T) {
	prov := &fakeSMSProvider{sendErr: &telephony.ProviderError{Code: 21608, Message: "unverified number"}}
	svc, repo, _, _ := newTestService(prov)

	_, err := svc.Send(context.Background(), "+15550133", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *telephony.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error does not carry provider detail: %v", err)
	}
	msgs, _ := repo.ListByCounterparty(context.Background(), "+15550133", 0)
	if len(msgs) != 0 {
		t.Fatalf("failed send was logged: %v", msgs)
	}
}

func TestSend_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeSMSProvider{})
	if _, err := svc.Send(context.Background(), "", "hi"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Send(context.Background(), "+15550133", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleInbound_IncrementsUnread(t *testing.T) {
	svc, repo, unread, _ := newTestService(&fakeSMSProvider{})
	ctx := context.Background()

	svc.HandleInbound(ctx, telephony.InboundMessageForm{MessageSID: "SM10", From: "+15550144", Body: "running late"})
	svc.HandleInbound(ctx, telephony.InboundMessageForm{MessageSID: "SM11", From: "+15550144", Body: "5 min"})

	n, err := unread.Get(ctx, "+15550144")
	if err != nil || n != 2 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	msgs, _ := repo.ListByCounterparty(ctx, "+15550144", 0)
	if len(msgs) != 2 || msgs[0].Status != StatusReceived {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestHandleStatus(t *testing.T) {
	prov := &fakeSMSProvider{sid: "SM20"}
	svc, repo, _, now := newTestService(prov)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "+15550133", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	*now = now.Add(5 * time.Second)
	svc.HandleStatus(ctx, telephony.MessageStatusForm{MessageSID: "SM20", MessageStatus: "delivered"})

	msgs, _ := repo.ListByCounterparty(ctx, "+15550133", 0)
	if msgs[0].Status != StatusDelivered {
		t.Fatalf("status = %s", msgs[0].Status)
	}

	// Unknown vocabulary and unknown ids are both absorbed.
	svc.HandleStatus(ctx, telephony.MessageStatusForm{MessageSID: "SM20", MessageStatus: "weird"})
	svc.HandleStatus(ctx, telephony.MessageStatusForm{MessageSID: "SM99", MessageStatus: "delivered"})
}

func TestHistory_ResetsUnread(t *testing.T) {
	svc, _, unread, _ := newTestService(&fakeSMSProvider{})
	ctx := context.Background()

	svc.HandleInbound(ctx, telephony.InboundMessageForm{MessageSID: "SM30", From: "+15550155", Body: "q1"})

	msgs, err := svc.History(ctx, "+15550155", 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("history = %v, %v", msgs, err)
	}
	n, _ := unread.Get(ctx, "+15550155")
	if n != 0 {
		t.Fatalf("unread = %d after read", n)
	}
}

func TestConversations(t *testing.T) {
	prov := &fakeSMSProvider{sid: "SM40"}
	svc, _, _, now := newTestService(prov)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "+15550133", "see you at 4"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	*now = now.Add(time.Minute)
	svc.HandleInbound(ctx, telephony.InboundMessageForm{MessageSID: "SM41", From: "+15550144", Body: "can we reschedule?"})

	convs, err := svc.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %+v", convs)
	}
	// Most recent first.
	if convs[0].Counterparty != "+15550144" || convs[0].Unread != 1 {
		t.Fatalf("first conversation = %+v", convs[0])
	}
	if convs[1].Counterparty != "+15550133" || convs[1].Unread != 0 {
		t.Fatalf("second conversation = %+v", convs[1])
	}
}
