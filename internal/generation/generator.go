// Package generation talks to the text-generation collaborators that produce
// chat replies, campaign plans, call scripts and email copy.
package generation

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/outreach-console/internal/apperrors"
)

const (
	// MaxContextSize caps how many retrieved documents a request may ask for.
	MaxContextSize     = 20
	defaultContextSize = 5
	serviceName        = "generation"
)

// Request is a single instruction for the generation service.
type Request struct {
	Instruction     string
	ContextSize     int
	IncludeMemories bool
	UserID          string
	// History carries prior conversation turns when the backend can use them.
	History []openai.ChatCompletionMessage
}

// Document is a retrieved context snippet returned with an answer.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the raw answer. Answer may be empty on degenerate responses;
// callers treat empty or short output as a failure that needs a fallback.
type Result struct {
	Answer    string     `json:"answer"`
	Documents []Document `json:"documents,omitempty"`
	Sources   []string   `json:"sources,omitempty"`
}

// Generator produces free text from an instruction. Implementations do not
// retry; retry policy belongs to the caller.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// ClampContextSize bounds k to 1..MaxContextSize, defaulting non-positive values.
func ClampContextSize(k int) int {
	if k <= 0 {
		return defaultContextSize
	}
	if k > MaxContextSize {
		return MaxContextSize
	}
	return k
}

func validate(req Request) (Request, error) {
	req.Instruction = strings.TrimSpace(req.Instruction)
	if req.Instruction == "" {
		return req, apperrors.Precondition("generate", "instruction required")
	}
	req.ContextSize = ClampContextSize(req.ContextSize)
	return req, nil
}
