package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

var tracer = otel.Tracer("outreach.internal.calls")

const (
	serviceName          = "telephony"
	defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"
)

// Placement is a call to be placed.
type Placement struct {
	To           string
	Script       string
	CustomerName string
}

// CallStatus is a provider status read. DurationSeconds is zero until the
// provider reports it.
type CallStatus struct {
	Status          Status
	DurationSeconds int
}

// Gateway is the telephony provider.
type Gateway interface {
	Initiate(ctx context.Context, p Placement) (sid string, status Status, err error)
	Status(ctx context.Context, sid string) (CallStatus, error)
	Transcript(ctx context.Context, sid string) ([]Turn, error)
}

// TranscriptSource supplies the turns captured for a call.
type TranscriptSource interface {
	Transcript(ctx context.Context, sid string) ([]Turn, error)
}

// TwilioConfig configures the Twilio gateway.
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	WebhookBase string
	// BaseURL overrides the REST endpoint (tests).
	BaseURL string
	Timeout time.Duration
}

// TwilioGateway places calls through Twilio's REST API with inline TwiML.
type TwilioGateway struct {
	cfg         TwilioConfig
	httpClient  *http.Client
	transcripts TranscriptSource
	logger      *logging.Logger
}

// NewTwilioGateway validates credentials and returns a gateway.
func NewTwilioGateway(cfg TwilioConfig, transcripts TranscriptSource, logger *logging.Logger) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, errors.New("calls: twilio credentials missing")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.WebhookBase = strings.TrimRight(cfg.WebhookBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TwilioGateway{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		transcripts: transcripts,
		logger:      logger,
	}, nil
}

type twilioCall struct {
	SID      string `json:"sid"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

// Initiate creates the call. A rejection by Twilio is an external error.
func (g *TwilioGateway) Initiate(ctx context.Context, p Placement) (string, Status, error) {
	ctx, span := tracer.Start(ctx, "calls.twilio.create")
	defer span.End()
	span.SetAttributes(attribute.String("outreach.call.to", logging.MaskPhone(p.To)))

	form := url.Values{}
	form.Set("To", p.To)
	form.Set("From", g.cfg.FromNumber)
	form.Set("Twiml", GatherTwiML(p.Script, g.cfg.WebhookBase))
	if g.cfg.WebhookBase != "" {
		form.Set("StatusCallback", g.cfg.WebhookBase+"/phone-call/webhook")
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, evt := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", evt)
		}
	}

	var call twilioCall
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", g.cfg.BaseURL, g.cfg.AccountSID)
	if err := g.do(ctx, http.MethodPost, endpoint, form, &call); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create call")
		return "", "", apperrors.External(serviceName, "create call", err)
	}
	if call.SID == "" {
		err := errors.New("twilio response missing call sid")
		span.RecordError(err)
		return "", "", apperrors.External(serviceName, "create call", err)
	}
	span.SetAttributes(attribute.String("outreach.call.sid", call.SID))
	g.logger.Info("twilio call created", "sid", call.SID, "to", logging.MaskPhone(p.To), "status", call.Status)
	return call.SID, ParseStatus(call.Status), nil
}

// Status fetches the current call status and, once known, its duration.
func (g *TwilioGateway) Status(ctx context.Context, sid string) (CallStatus, error) {
	ctx, span := tracer.Start(ctx, "calls.twilio.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("outreach.call.sid", sid))

	var call twilioCall
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", g.cfg.BaseURL, g.cfg.AccountSID, url.PathEscape(sid))
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &call); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch call")
		return CallStatus{}, apperrors.External(serviceName, "fetch call", err)
	}
	duration, _ := strconv.Atoi(strings.TrimSpace(call.Duration))
	return CallStatus{Status: ParseStatus(call.Status), DurationSeconds: duration}, nil
}

// Transcript assembles the conversation captured by the webhooks.
func (g *TwilioGateway) Transcript(ctx context.Context, sid string) ([]Turn, error) {
	if g.transcripts == nil {
		return []Turn{}, nil
	}
	turns, err := g.transcripts.Transcript(ctx, sid)
	if err != nil {
		return nil, apperrors.External(serviceName, "transcript", err)
	}
	return turns, nil
}

func (g *TwilioGateway) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read twilio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio request failed: %s", formatTwilioError(resp.StatusCode, payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode twilio response: %w", err)
	}
	return nil
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

var _ Gateway = (*TwilioGateway)(nil)
