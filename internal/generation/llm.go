package generation

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/outreach-console/internal/apperrors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn passed to an LLM backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is a chat-completion backend.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

const defaultSystemPrompt = "You are a marketing operations assistant. You help an operator plan " +
	"multi-channel outreach campaigns, draft customer emails and write short, friendly phone " +
	"call scripts. Answer only with the requested content."

// LLMGenerator serves Generator directly from an LLM backend when no
// retrieval service is deployed. ContextSize and memories are ignored.
type LLMGenerator struct {
	client    LLMClient
	model     string
	system    string
	maxTokens int32
}

// NewLLMGenerator wraps client. An empty system prompt uses the default.
func NewLLMGenerator(client LLMClient, model, system string) *LLMGenerator {
	if client == nil {
		panic("generation: llm client cannot be nil")
	}
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}
	return &LLMGenerator{
		client:    client,
		model:     model,
		system:    system,
		maxTokens: 1024,
	}
}

var _ Generator = (*LLMGenerator)(nil)

// Generate sends the history plus instruction as a chat completion.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "generation.llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("outreach.generation.model", g.model))

	messages := make([]Message, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := RoleUser
		switch msg.Role {
		case openai.ChatMessageRoleAssistant:
			role = RoleAssistant
		case openai.ChatMessageRoleSystem:
			role = RoleSystem
		}
		messages = append(messages, Message{Role: role, Content: msg.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Instruction})

	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.model,
		System:      []string{g.system},
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm completion failed")
		return Result{}, apperrors.External(serviceName, "generate", err)
	}
	return Result{Answer: resp.Text}, nil
}
