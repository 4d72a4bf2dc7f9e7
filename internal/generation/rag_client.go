package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/outreach-console/internal/apperrors"
)

var tracer = otel.Tracer("outreach.internal.generation")

// RAGConfig describes how to reach the retrieval-augmented generation service.
type RAGConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RAGClient sends instructions to the retrieval/generation service.
type RAGClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRAGClient validates the configuration and returns a ready-to-use client.
func NewRAGClient(cfg RAGConfig) (*RAGClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("generation: base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RAGClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

var _ Generator = (*RAGClient)(nil)

type ragQuery struct {
	Query           string        `json:"query"`
	K               int           `json:"k"`
	IncludeMemories bool          `json:"include_memories"`
	UserID          string        `json:"user_id,omitempty"`
	History         []wireMessage `json:"history,omitempty"`
}

// Generate posts the instruction to /langchain-rag/query and returns the answer.
func (c *RAGClient) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "generation.rag.query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("outreach.generation.k", req.ContextSize),
		attribute.Bool("outreach.generation.include_memories", req.IncludeMemories),
	)

	payload := ragQuery{
		Query:           req.Instruction,
		K:               req.ContextSize,
		IncludeMemories: req.IncludeMemories,
		UserID:          req.UserID,
		History:         toWireMessages(req.History),
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/langchain-rag/query", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rag query failed")
		return Result{}, apperrors.External(serviceName, "generate", err)
	}

	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		err = fmt.Errorf("generation: decode response failed: %w", err)
		span.RecordError(err)
		return Result{}, apperrors.External(serviceName, "generate", err)
	}
	span.SetAttributes(attribute.Int("outreach.generation.answer_len", len(out.Answer)))
	return out, nil
}

func (c *RAGClient) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("generation: failed to encode payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("generation: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("generation: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("generation: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWireMessages(history []openai.ChatCompletionMessage) []wireMessage {
	if len(history) == 0 {
		return nil
	}
	out := make([]wireMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, wireMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return out
}
