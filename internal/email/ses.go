package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender sends emails via AWS SES.
type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSESSender returns nil when no client is given.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends one email via AWS SES.
func (s *SESSender) Send(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("email: SES client not configured")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{},
			},
		},
	}
	if msg.Body != "" {
		input.Content.Simple.Body.Text = &types.Content{
			Data:    aws.String(msg.Body),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTML != "" {
		input.Content.Simple.Body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", logging.MaskEmail(msg.To))
		return "", fmt.Errorf("email: SES send failed: %w", err)
	}
	messageID := aws.ToString(output.MessageId)
	s.logger.Info("email sent via SES", "to", logging.MaskEmail(msg.To), "message_id", messageID)
	return messageID, nil
}

var (
	_ Sender = (*SESSender)(nil)
	_ Sender = (*SendGridSender)(nil)
	_ Sender = (*StubSender)(nil)
)
