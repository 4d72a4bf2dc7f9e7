package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/outreach-console/internal/apperrors"
)

type stubLLM struct {
	resp  LLMResponse
	err   error
	calls int
	last  LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.calls++
	s.last = req
	return s.resp, s.err
}

func TestLLMGeneratorBuildsMessages(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{Text: "answer"}}
	gen := NewLLMGenerator(llm, "model-x", "")

	res, err := gen.Generate(context.Background(), Request{
		Instruction: "write a script",
		History: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hello"},
			{Role: openai.ChatMessageRoleAssistant, Content: "hi!"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	assert.Equal(t, "model-x", llm.last.Model)
	require.Len(t, llm.last.Messages, 3)
	assert.Equal(t, RoleAssistant, llm.last.Messages[1].Role)
	assert.Equal(t, "write a script", llm.last.Messages[2].Content)
	assert.Equal(t, []string{defaultSystemPrompt}, llm.last.System)
}

func TestLLMGeneratorWrapsErrors(t *testing.T) {
	gen := NewLLMGenerator(&stubLLM{err: errors.New("throttled")}, "m", "sys")
	_, err := gen.Generate(context.Background(), Request{Instruction: "x"})
	assert.True(t, apperrors.IsExternal(err))

	_, err = gen.Generate(context.Background(), Request{})
	assert.True(t, apperrors.IsPrecondition(err))
}

func TestFailoverSwitchesProviderOnce(t *testing.T) {
	primary := &stubLLM{err: errors.New("down")}
	secondary := &stubLLM{resp: LLMResponse{Text: "from gemini"}}
	client := NewFailover(nil, Provider{Name: "bedrock", Client: primary}, Provider{Name: "gemini", Client: secondary})

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFailoverReportsEveryProviderError(t *testing.T) {
	primary := &stubLLM{err: errors.New("throttled")}
	secondary := &stubLLM{err: errors.New("quota")}
	client := NewFailover(nil, Provider{Name: "bedrock", Client: primary}, Provider{Name: "gemini", Client: secondary})

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bedrock: throttled")
	assert.Contains(t, err.Error(), "gemini: quota")
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFailoverSkipsMissingProvider(t *testing.T) {
	client := NewFailover(nil, Provider{Name: "bedrock", Client: &stubLLM{err: errors.New("down")}}, Provider{Name: "gemini"})
	assert.Equal(t, []string{"bedrock"}, client.Providers())

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "bedrock: down")

	_, err = NewFailover(nil).Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}

func TestFailoverStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubLLM{err: context.Canceled}
	secondary := &stubLLM{resp: LLMResponse{Text: "late"}}

	_, err := NewFailover(nil, Provider{Name: "bedrock", Client: primary}, Provider{Name: "gemini", Client: secondary}).
		Complete(ctx, LLMRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, secondary.calls)
}

func TestFailoverSkipsSecondaryWhenPrimaryAnswers(t *testing.T) {
	primary := &stubLLM{resp: LLMResponse{Text: "ok"}}
	secondary := &stubLLM{}
	resp, err := NewFailover(nil, Provider{Name: "bedrock", Client: primary}, Provider{Name: "gemini", Client: secondary}).
		Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Zero(t, secondary.calls)
}

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockClientComplete(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " Subject: Hi "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(13)},
	}}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:    "anthropic.model",
		System:   []string{"sys", " "},
		Messages: []Message{{Role: RoleSystem, Content: "extra"}, {Role: RoleUser, Content: "hello"}, {Role: RoleUser, Content: "  "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Subject: Hi", resp.Text)
	assert.Equal(t, int32(13), resp.Usage.TotalTokens)
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 1)
	assert.Equal(t, "anthropic.model", aws.ToString(api.input.ModelId))
}

func TestBedrockClientRequiresModel(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{})
	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	_, err = client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")
}
