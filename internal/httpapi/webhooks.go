package httpapi

import (
	"log/slog"
	"net/http"

	"academy-caller/internal/calls"
	"academy-caller/internal/messaging"
	"academy-caller/internal/telephony"

	"github.com/gin-gonic/gin"
)

// WebhookHandlers terminates the provider-facing webhook surface. Every
// endpoint acks with 200 regardless of processing outcome: a non-2xx makes
// the provider retry-storm, and a malformed payload will not become
// well-formed on retry. Failures are logged instead.

type WebhookHandlers struct {
	Calls    *calls.Service
	Messages *messaging.Service
	Log      *slog.Logger
}

const contentTypeXML = "application/xml"

// VoiceAnswer serves the call instructions the provider fetches when an
// outbound callee picks up.
func (h WebhookHandlers) VoiceAnswer(c *gin.Context) {
	doc, err := telephony.RenderOutboundAnswer("Connecting you now.")
	if err != nil {
		h.Log.Error("answer twiml render failed", "error", err)
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(doc))
}

// VoiceInbound handles a call arriving at our number and answers with the
// provider instruction the lifecycle controller decided on.
func (h WebhookHandlers) VoiceInbound(c *gin.Context) {
	f, err := telephony.ParseInboundCall(c.Request)
	if err != nil {
		h.Log.Warn("malformed inbound call webhook", "error", err)
		h.renderInbound(c, telephony.InboundActionReject, "")
		return
	}
	action := h.Calls.HandleInboundCall(c.Request.Context(), f)
	h.renderInbound(c, action, f.To)
}

func (h WebhookHandlers) renderInbound(c *gin.Context, action telephony.InboundAction, connectTo string) {
	doc, err := telephony.RenderInboundAnswer(action, connectTo)
	if err != nil {
		h.Log.Error("inbound twiml render failed", "action", string(action), "error", err)
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(doc))
}

// VoiceStatus ingests one call lifecycle status webhook.
func (h WebhookHandlers) VoiceStatus(c *gin.Context) {
	f, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		h.Log.Warn("malformed status webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}
	h.Calls.HandleStatusCallback(c.Request.Context(), f)
	c.Status(http.StatusOK)
}

// VoiceRecording ingests the recording-status webhook.
func (h WebhookHandlers) VoiceRecording(c *gin.Context) {
	f, err := telephony.ParseRecordingCallback(c.Request)
	if err != nil {
		h.Log.Warn("malformed recording webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}
	h.Calls.HandleRecordingCallback(c.Request.Context(), f)
	c.Status(http.StatusOK)
}

// SMSInbound ingests a message arriving at our number.
func (h WebhookHandlers) SMSInbound(c *gin.Context) {
	f, err := telephony.ParseInboundMessage(c.Request)
	if err != nil {
		h.Log.Warn("malformed inbound sms webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}
	h.Messages.HandleInbound(c.Request.Context(), f)
	c.Status(http.StatusOK)
}

// SMSStatus ingests a message delivery-status webhook.
func (h WebhookHandlers) SMSStatus(c *gin.Context) {
	f, err := telephony.ParseMessageStatus(c.Request)
	if err != nil {
		h.Log.Warn("malformed sms status webhook", "error", err)
		c.Status(http.StatusOK)
		return
	}
	h.Messages.HandleStatus(c.Request.Context(), f)
	c.Status(http.StatusOK)
}
