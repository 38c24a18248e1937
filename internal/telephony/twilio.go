package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker/v2"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

var errTwilioServerError = errors.New("telephony: twilio server error")

// TwilioProvider talks to the Twilio REST API over plain HTTP. A circuit
// breaker guards the whole API surface; transient transport failures are
// retried with backoff inside a single logical request.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	hc         *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *slog.Logger
}

type TwilioOption func(*TwilioProvider)

// WithBaseURL overrides the API endpoint; tests point it at httptest servers.
func WithBaseURL(u string) TwilioOption {
	return func(p *TwilioProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) TwilioOption {
	return func(p *TwilioProvider) { p.hc = hc }
}

func NewTwilioProvider(accountSID, authToken string, log *slog.Logger, opts ...TwilioOption) *TwilioProvider {
	if log == nil {
		log = slog.Default()
	}
	p := &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    twilioAPIBase,
		hc:         &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:     "twilio",
		Interval: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit state changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, errTwilioServerError)
		},
	})
	return p
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.AnswerURL)
	form.Set("StatusCallback", req.StatusCallbackURL)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}
	if req.Record {
		form.Set("Record", "true")
		if req.RecordingCallbackURL != "" {
			form.Set("RecordingStatusCallback", req.RecordingCallbackURL)
		}
	}

	body, err := p.do(ctx, http.MethodPost, p.callsURL(""), form)
	if err != nil {
		return PlaceCallResult{}, err
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Sid == "" {
		return PlaceCallResult{}, &ProviderError{Code: 0, Message: "malformed place-call response"}
	}
	return PlaceCallResult{CallSID: out.Sid}, nil
}

func (p *TwilioProvider) CompleteCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := p.do(ctx, http.MethodPost, p.callsURL(callSID), form)
	return err
}

func (p *TwilioProvider) FetchCallStatus(ctx context.Context, callSID string) (CallStatusResult, error) {
	body, err := p.do(ctx, http.MethodGet, p.callsURL(callSID), nil)
	if err != nil {
		return CallStatusResult{}, err
	}

	var out struct {
		Status   string `json:"status"`
		Duration string `json:"duration"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CallStatusResult{}, &ProviderError{Code: 0, Message: "malformed call-status response"}
	}
	dur := 0
	if out.Duration != "" {
		if n, err := strconv.Atoi(out.Duration); err == nil {
			dur = n
		}
	}
	return CallStatusResult{Status: out.Status, DurationSeconds: dur}, nil
}

func (p *TwilioProvider) SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResult, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Body", req.Body)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	body, err := p.do(ctx, http.MethodPost, p.accountURL("/Messages.json"), form)
	if err != nil {
		return SendMessageResult{}, err
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Sid == "" {
		return SendMessageResult{}, &ProviderError{Code: 0, Message: "malformed send-message response"}
	}
	return SendMessageResult{MessageSID: out.Sid}, nil
}

func (p *TwilioProvider) ListRecordings(ctx context.Context, callSID string) ([]Recording, error) {
	body, err := p.do(ctx, http.MethodGet, p.accountURL("/Calls/"+callSID+"/Recordings.json"), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Recordings []struct {
			Sid      string `json:"sid"`
			Duration string `json:"duration"`
			URI      string `json:"uri"`
		} `json:"recordings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ProviderError{Code: 0, Message: "malformed recordings response"}
	}

	recs := make([]Recording, 0, len(out.Recordings))
	for _, r := range out.Recordings {
		dur := 0
		if n, err := strconv.Atoi(r.Duration); err == nil {
			dur = n
		}
		recs = append(recs, Recording{
			RecordingSID:    r.Sid,
			URL:             p.mediaURL(r.URI),
			DurationSeconds: dur,
		})
	}
	return recs, nil
}

func (p *TwilioProvider) callsURL(callSID string) string {
	if callSID == "" {
		return p.accountURL("/Calls.json")
	}
	return p.accountURL("/Calls/" + callSID + ".json")
}

func (p *TwilioProvider) accountURL(suffix string) string {
	return p.baseURL + "/Accounts/" + p.accountSID + suffix
}

// mediaURL turns a recording resource URI into a fetchable mp3 URL.
func (p *TwilioProvider) mediaURL(uri string) string {
	uri = strings.TrimSuffix(uri, ".json")
	if strings.HasPrefix(uri, "/") {
		return p.baseURL[:len(p.baseURL)-len("/2010-04-01")] + uri + ".mp3"
	}
	return uri + ".mp3"
}

// do executes one logical API request through the breaker, retrying
// transport-level failures with backoff. 4xx responses surface as
// ProviderError without tripping the breaker; 5xx responses count as
// breaker failures.
func (p *TwilioProvider) do(ctx context.Context, method, apiURL string, form url.Values) ([]byte, error) {
	var (
		body       []byte
		statusCode int
	)

	out, err := p.breaker.Execute(func() ([]byte, error) {
		err := retry.Do(
			func() error {
				var err error
				body, statusCode, err = p.request(ctx, method, apiURL, form)
				return err
			},
			retry.Attempts(3),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(200*time.Millisecond),
			retry.MaxDelay(2*time.Second),
			retry.Context(ctx),
		)
		if err != nil {
			return nil, err
		}
		if statusCode >= http.StatusInternalServerError {
			return nil, errTwilioServerError
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, errTwilioServerError) {
			return nil, &ProviderError{Code: statusCode, Message: "twilio server error"}
		}
		return nil, fmt.Errorf("telephony: twilio request failed: %w", err)
	}

	if statusCode >= http.StatusBadRequest {
		return nil, parseTwilioError(out, statusCode)
	}
	return out, nil
}

func (p *TwilioProvider) request(ctx context.Context, method, apiURL string, form url.Values) ([]byte, int, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func parseTwilioError(body []byte, statusCode int) error {
	var out struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err == nil && out.Message != "" {
		return &ProviderError{Code: out.Code, Message: out.Message}
	}
	return &ProviderError{Code: statusCode, Message: http.StatusText(statusCode)}
}
