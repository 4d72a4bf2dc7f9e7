package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/email"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// BuildEmailSender picks the delivery provider from EMAIL_PROVIDER. A
// provider that is selected but not configured falls back to the stub sender.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (email.Sender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "", "stub":
		logger.Info("email delivery stubbed")
		return email.NewStubSender(logger), nil

	case "sendgrid":
		sender := email.NewSendGridSender(email.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid not configured; email delivery stubbed")
			return email.NewStubSender(logger), nil
		}
		return sender, nil

	case "ses":
		if awsCfg == nil || cfg.SESFromEmail == "" {
			logger.Warn("ses not configured; email delivery stubbed")
			return email.NewStubSender(logger), nil
		}
		return email.NewSESSender(sesv2.NewFromConfig(*awsCfg), email.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger), nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}

// BuildDispatcher wraps sender with the configured send pacing.
func BuildDispatcher(cfg *appconfig.Config, sender email.Sender, logger *logging.Logger) *email.Dispatcher {
	return email.NewDispatcher(sender, email.DispatcherConfig{
		RatePerSecond: cfg.EmailSendRate,
		Burst:         cfg.EmailSendBurst,
		SendTimeout:   cfg.ExternalTimeout,
	}, logger)
}
