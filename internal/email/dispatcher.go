package email

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

var tracer = otel.Tracer("outreach.internal.email")

const reasonMissingAddress = "Email address is required"

// Recipient is one addressee of a bulk dispatch.
type Recipient struct {
	Email           string         `json:"email"`
	CustomerID      string         `json:"customer_id,omitempty"`
	Name            string         `json:"name,omitempty"`
	Personalization map[string]any `json:"personalization,omitempty"`
}

// BulkRequest is a composed email and its recipients.
type BulkRequest struct {
	Recipients   []Recipient `json:"recipients"`
	Subject      string      `json:"subject"`
	Body         string      `json:"body"`
	CampaignName string      `json:"campaign_name,omitempty"`
}

// FailedRecipient records why one recipient was not sent.
type FailedRecipient struct {
	Email      string `json:"email"`
	CustomerID string `json:"customer_id,omitempty"`
	Reason     string `json:"reason"`
}

// BulkResult is the outcome of one dispatch. Partial failure is reported
// here rather than as an error.
type BulkResult struct {
	SentCount        int               `json:"sent_count"`
	FailedCount      int               `json:"failed_count"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
	MessageIDs       []string          `json:"message_ids"`
	Message          string            `json:"message"`
	CompletedAt      time.Time         `json:"completed_at"`
}

// DispatcherConfig tunes send pacing.
type DispatcherConfig struct {
	// RatePerSecond limits sends; zero or less disables pacing.
	RatePerSecond float64
	Burst         int
	// SendTimeout bounds each provider call; defaults to 30s.
	SendTimeout time.Duration
}

// Dispatcher sends a composed email to many recipients.
type Dispatcher struct {
	sender   Sender
	renderer *Renderer
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logging.Logger
}

// NewDispatcher builds a dispatcher around sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if sender == nil {
		panic("email: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:   sender,
		renderer: NewRenderer(),
		limiter:  limiter,
		timeout:  cfg.SendTimeout,
		logger:   logger,
	}
}

// Validate rejects requests that must not reach the network.
func Validate(req BulkRequest) error {
	if len(req.Recipients) == 0 {
		return apperrors.Precondition("bulk email", "at least one recipient is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return apperrors.Precondition("bulk email", "subject is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.Precondition("bulk email", "body is required")
	}
	return nil
}

// Send renders and sends the email to each recipient. A PreconditionError is
// returned before any send when recipients, subject or body are empty.
func (d *Dispatcher) Send(ctx context.Context, req BulkRequest) (BulkResult, error) {
	if err := Validate(req); err != nil {
		return BulkResult{}, err
	}

	ctx, span := tracer.Start(ctx, "email.bulk.send")
	defer span.End()
	span.SetAttributes(
		attribute.Int("outreach.email.recipients", len(req.Recipients)),
		attribute.String("outreach.email.campaign", req.CampaignName),
	)

	result := BulkResult{
		FailedRecipients: []FailedRecipient{},
		MessageIDs:       []string{},
	}
	fail := func(r Recipient, reason string) {
		result.FailedCount++
		result.FailedRecipients = append(result.FailedRecipients, FailedRecipient{
			Email:      r.Email,
			CustomerID: r.CustomerID,
			Reason:     reason,
		})
	}

	for _, recipient := range req.Recipients {
		address := strings.TrimSpace(recipient.Email)
		if address == "" {
			fail(recipient, reasonMissingAddress)
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			fail(recipient, "dispatch cancelled: "+err.Error())
			continue
		}

		vars := recipientVars(recipient, req.CampaignName)
		subject := d.render(req.Subject, vars, address)
		body := d.render(req.Body, vars, address)

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		id, err := d.sender.Send(sendCtx, Message{
			To:      address,
			ToName:  recipient.Name,
			Subject: subject,
			Body:    body,
		})
		cancel()
		if err != nil {
			fail(recipient, err.Error())
			continue
		}
		result.SentCount++
		if id != "" {
			result.MessageIDs = append(result.MessageIDs, id)
		}
	}

	result.CompletedAt = time.Now().UTC()
	result.Message = summary(result)
	span.SetAttributes(
		attribute.Int("outreach.email.sent", result.SentCount),
		attribute.Int("outreach.email.failed", result.FailedCount),
	)
	d.logger.Info("bulk email dispatched",
		"campaign", req.CampaignName,
		"sent", result.SentCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (d *Dispatcher) render(text string, vars map[string]any, address string) string {
	out, err := d.renderer.Render(text, vars)
	if err != nil {
		d.logger.Warn("email personalization failed, sending raw text", "error", err, "to", logging.MaskEmail(address))
	}
	return out
}

func recipientVars(r Recipient, campaign string) map[string]any {
	vars := make(map[string]any, len(r.Personalization)+4)
	for k, v := range r.Personalization {
		vars[k] = v
	}
	vars["name"] = r.Name
	vars["email"] = r.Email
	vars["customer_id"] = r.CustomerID
	vars["campaign_name"] = campaign
	return vars
}

func summary(r BulkResult) string {
	switch {
	case r.FailedCount == 0:
		return "Successfully sent all emails"
	case r.SentCount == 0:
		return "Failed to send all emails"
	default:
		return "Sent some emails; see failed recipients"
	}
}
