package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wolfman30/outreach-console/internal/generation"
)

type stubGenerator struct {
	result generation.Result
	err    error
	got    generation.Request
}

func (s *stubGenerator) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	s.got = req
	return s.result, s.err
}

func TestRunPrintsAnswerAndSources(t *testing.T) {
	gen := &stubGenerator{result: generation.Result{Answer: "  Loyal customers respond best.  ", Sources: []string{"crm", "memory"}}}
	var out bytes.Buffer

	if err := run(context.Background(), gen, generation.Request{Instruction: "hi"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gen.got.Instruction != "hi" {
		t.Fatalf("instruction not forwarded: %+v", gen.got)
	}
	text := out.String()
	if !strings.Contains(text, "Sources: crm, memory") || !strings.Contains(text, "\nLoyal customers respond best.\n") {
		t.Fatalf("unexpected output:\n%s", text)
	}
}

func TestRunWrapsError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("offline")}
	err := run(context.Background(), gen, generation.Request{Instruction: "hi"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
