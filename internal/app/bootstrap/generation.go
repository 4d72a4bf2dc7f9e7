package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/generation"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// BuildGenerator selects the generation backend from GENERATION_BACKEND.
// "rag" talks to the retrieval service; "bedrock" and "gemini" call a model
// directly, with the other one as fallback when it is configured.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (generation.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.GenerationBackend {
	case "", "rag":
		client, err := generation.NewRAGClient(generation.RAGConfig{
			BaseURL: cfg.GenerationBaseURL,
			APIKey:  cfg.GenerationAPIKey,
			Timeout: cfg.ExternalTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: rag client: %w", err)
		}
		logger.Info("using retrieval generation service", "base_url", cfg.GenerationBaseURL)
		return client, nil

	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock backend")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config is required for the bedrock backend")
		}
		primary := generation.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg))
		var fallback generation.LLMClient
		if cfg.GeminiAPIKey != "" {
			gemini, err := generation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini fallback unavailable", "error", err)
			} else {
				fallback = gemini
			}
		}
		chain := generation.NewFailover(logger,
			generation.Provider{Name: "bedrock", Client: primary},
			generation.Provider{Name: "gemini", Client: fallback},
		)
		logger.Info("using bedrock generation", "model", cfg.BedrockModelID, "providers", chain.Providers())
		return generation.NewLLMGenerator(chain, cfg.BedrockModelID, ""), nil

	case "gemini":
		gemini, err := generation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		logger.Info("using gemini generation", "model", cfg.GeminiModelID)
		return generation.NewLLMGenerator(gemini, cfg.GeminiModelID, ""), nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown generation backend %q", cfg.GenerationBackend)
	}
}
