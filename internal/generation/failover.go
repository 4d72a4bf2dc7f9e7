package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

// Provider is one named LLM backend in a failover chain.
type Provider struct {
	Name   string
	Client LLMClient
}

// Failover sends a completion to each provider in order until one answers.
// Every provider is asked at most once per request; a failing provider is
// never asked again, so a single Generate still makes at most one attempt
// per backend.
type Failover struct {
	providers []Provider
	logger    *logging.Logger
}

// NewFailover builds a chain from providers, skipping any without a client.
func NewFailover(logger *logging.Logger, providers ...Provider) *Failover {
	if logger == nil {
		logger = logging.Default()
	}
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Client != nil {
			chain = append(chain, p)
		}
	}
	return &Failover{providers: chain, logger: logger}
}

var _ LLMClient = (*Failover)(nil)

// Providers lists the provider names in the order they are asked.
func (f *Failover) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name
	}
	return names
}

func (f *Failover) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(f.providers) == 0 {
		return LLMResponse{}, errors.New("no llm provider configured")
	}
	var errs []error
	for i, p := range f.providers {
		resp, err := p.Client.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("llm provider answered after failover", "provider", p.Name)
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(f.providers) {
			f.logger.Warn("llm provider failed, switching provider",
				"provider", p.Name,
				"next", f.providers[i+1].Name,
				"error", err.Error(),
			)
		}
	}
	if len(errs) == 1 {
		return LLMResponse{}, errs[0]
	}
	return LLMResponse{}, errors.Join(errs...)
}
