package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements LLMClient using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient creates a Gemini client. An empty model id uses gemini-2.5-flash.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("generation: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

var _ LLMClient = (*GeminiClient)(nil)

// Complete replays all but the last message as chat history and sends the last one.
func (c *GeminiClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("generation: gemini requires at least one message")
	}

	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if systemText := strings.TrimSpace(strings.Join(req.System, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}

	cs := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	last := req.Messages[len(req.Messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("generation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return LLMResponse{}, errors.New("generation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	result := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
