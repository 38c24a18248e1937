package telephony

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedProvider stands in for the live provider when no credentials are
// configured. Calls get locally generated SIDs and succeed immediately, so
// the full UI flow works offline; there are no webhooks, so state only
// advances through client hangup or poll-reconcile.
type SimulatedProvider struct {
	mu    sync.Mutex
	calls map[string]*simCall
}

type simCall struct {
	placedAt time.Time
	endedAt  time.Time
	ended    bool
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{calls: make(map[string]*simCall)}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	sid := "sim-" + uuid.NewString()
	p.mu.Lock()
	p.calls[sid] = &simCall{placedAt: time.Now()}
	p.mu.Unlock()
	return PlaceCallResult{CallSID: sid}, nil
}

func (p *SimulatedProvider) CompleteCall(ctx context.Context, callSID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.calls[callSID]; ok && !c.ended {
		c.ended = true
		c.endedAt = time.Now()
	}
	return nil
}

func (p *SimulatedProvider) FetchCallStatus(ctx context.Context, callSID string) (CallStatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.calls[callSID]
	if !ok {
		return CallStatusResult{}, &ProviderError{Code: 20404, Message: "call not found"}
	}
	if c.ended {
		return CallStatusResult{
			Status:          "completed",
			DurationSeconds: int(c.endedAt.Sub(c.placedAt) / time.Second),
		}, nil
	}
	return CallStatusResult{Status: "in-progress"}, nil
}

func (p *SimulatedProvider) SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResult, error) {
	return SendMessageResult{MessageSID: "sim-" + uuid.NewString()}, nil
}

func (p *SimulatedProvider) ListRecordings(ctx context.Context, callSID string) ([]Recording, error) {
	return []Recording{}, nil
}
