package telephony

import (
	"strings"
	"testing"
)

func TestRenderInboundAnswer_Reject(t *testing.T) {
	xml, err := RenderInboundAnswer(InboundActionReject, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Reject") {
		t.Fatalf("expected Reject verb in: %s", xml)
	}
}

func TestRenderInboundAnswer_ConnectRequiresTarget(t *testing.T) {
	if _, err := RenderInboundAnswer(InboundActionConnect, ""); err == nil {
		t.Fatalf("expected error for connect without target")
	}
	xml, err := RenderInboundAnswer(InboundActionConnect, "+15557654321")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Dial") || !strings.Contains(xml, "+15557654321") {
		t.Fatalf("expected Dial verb with number in: %s", xml)
	}
}

func TestRenderInboundAnswer_UnknownAction(t *testing.T) {
	if _, err := RenderInboundAnswer(InboundAction("bogus"), ""); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestRenderOutboundAnswer(t *testing.T) {
	xml, err := RenderOutboundAnswer("As-salamu alaykum, your teacher is calling.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say") || !strings.Contains(xml, "<Pause") {
		t.Fatalf("expected Say and Pause verbs in: %s", xml)
	}
}
