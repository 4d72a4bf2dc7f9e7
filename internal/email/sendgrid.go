package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

const defaultFromName = "Marketing Team"

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends one email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("email: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", logging.MaskEmail(msg.To))
		return "", fmt.Errorf("email: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", logging.MaskEmail(msg.To))
		return "", fmt.Errorf("email: sendgrid returned status %d", response.StatusCode)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	s.logger.Info("email sent via sendgrid", "to", logging.MaskEmail(msg.To), "status", response.StatusCode, "message_id", messageID)
	return messageID, nil
}
