package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. Only the verbs this service answers with; no
// provider SDK dependency.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:"Number,omitempty"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// InboundAction is the decision for a call arriving at our number.
type InboundAction string

const (
	InboundActionConnect InboundAction = "connect"
	InboundActionReject  InboundAction = "reject"
	InboundActionHold    InboundAction = "hold"
)

// RenderOutboundAnswer is served from the answer URL when the callee picks
// up an outbound call.
func RenderOutboundAnswer(greeting string) (string, error) {
	r := twimlResponse{}
	if greeting != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: greeting})
	}
	// Keep the leg open; the operator side drives the conversation.
	r.Verbs = append(r.Verbs, twimlPause{Length: 3600})
	return renderTwiML(r)
}

// RenderInboundAnswer maps an inbound decision to TwiML.
func RenderInboundAnswer(action InboundAction, connectTo string) (string, error) {
	var r twimlResponse

	switch action {
	case InboundActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "busy"})
	case InboundActionHold:
		r.Verbs = append(r.Verbs, twimlSay{Text: "Please hold while we connect you."})
		r.Verbs = append(r.Verbs, twimlPause{Length: 45})
	case InboundActionConnect:
		if strings.TrimSpace(connectTo) == "" {
			return "", errors.New("telephony: connect target required")
		}
		r.Verbs = append(r.Verbs, twimlDial{Number: connectTo})
	default:
		return "", errors.New("telephony: unknown inbound action")
	}
	return renderTwiML(r)
}

func renderTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
