package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// CallStack groups the telephony pieces that share one session store.
type CallStack struct {
	Gateway  calls.Gateway
	Manager  *calls.Manager
	Webhooks *calls.WebhookHandler
	Store    *calls.SessionStore
}

// BuildCallStack wires the Twilio gateway, the Redis session store, the
// status poller and the webhook handler. rdb may be nil, in which case
// sessions are not persisted and webhooks serve the default greeting.
func BuildCallStack(cfg *appconfig.Config, rdb redis.UniversalClient, mt *metrics.OutreachMetrics, logger *logging.Logger) (*CallStack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var store *calls.SessionStore
	var transcripts calls.TranscriptSource
	if rdb != nil {
		store = calls.NewSessionStore(rdb)
		transcripts = store
	} else {
		logger.Warn("redis not configured; call transcripts unavailable")
	}

	gateway, err := calls.NewTwilioGateway(calls.TwilioConfig{
		AccountSID:  cfg.TwilioAccountSID,
		AuthToken:   cfg.TwilioAuthToken,
		FromNumber:  cfg.TwilioFromNumber,
		WebhookBase: cfg.TwilioWebhookBase,
		Timeout:     cfg.ExternalTimeout,
	}, transcripts, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: twilio: %w", err)
	}

	opts := []calls.ManagerOption{calls.WithMetrics(mt)}
	if store != nil {
		opts = append(opts, calls.WithSessionStore(store))
	}
	manager := calls.NewManager(gateway, calls.ManagerConfig{
		PollInterval: cfg.CallPollInterval,
		Timeout:      cfg.ExternalTimeout,
	}, logger, opts...)

	webhookCfg := calls.WebhookConfig{WebhookBase: cfg.TwilioWebhookBase}
	if cfg.TwilioValidateSignature {
		webhookCfg.AuthToken = cfg.TwilioAuthToken
	}

	return &CallStack{
		Gateway:  gateway,
		Manager:  manager,
		Webhooks: calls.NewWebhookHandler(store, gateway, webhookCfg, logger),
		Store:    store,
	}, nil
}
