package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/generation"
)

var errEmptyAnswer = apperrors.External("generation", "generate", errors.New("empty answer"))

var campaignIntent = regexp.MustCompile(`(?i)\b(campaigns?|schedule|week|plan)\b`)

// historyWindow bounds how many prior turns go to the generation service.
const historyWindow = 20

// ChatResult is the outcome of one operator message.
type ChatResult struct {
	Operator  ChatMessage   `json:"operator"`
	Reply     *ChatMessage  `json:"reply,omitempty"`
	Campaigns []DayCampaign `json:"campaigns,omitempty"`
	// CampaignError is set when campaign intent was detected but the plan failed.
	CampaignError string `json:"campaign_error,omitempty"`
}

// SendChatMessage appends the operator's message, asks for a reply and
// appends it. Messages that ask for a campaign plan also generate one.
// The operator turn stays in history even when the reply fails.
func (o *Orchestrator) SendChatMessage(ctx context.Context, text string) (ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatResult{}, apperrors.Precondition("send chat message", "message text is required")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ChatResult{}, ErrClosed
	}
	operator := o.appendChatLocked(RoleOperator, text)
	history := toHistory(o.chat[:len(o.chat)-1])
	o.mu.Unlock()

	result := ChatResult{Operator: operator}
	answer, err := o.generate(ctx, "chat", generation.Request{Instruction: text, History: history})
	if err != nil {
		o.notify(LevelError, "The assistant could not reply: "+err.Error())
		o.record(ctx, "Operator: "+text, "")
		return result, err
	}

	o.mu.Lock()
	reply := o.appendChatLocked(RoleAssistant, strings.TrimSpace(answer))
	o.scheduleAutoEmailLocked()
	o.mu.Unlock()
	result.Reply = &reply

	o.record(ctx, fmt.Sprintf("Operator: %s\nAssistant: %s", text, reply.Text), "")

	if campaignIntent.MatchString(text) {
		campaigns, err := o.GenerateCampaigns(ctx, text)
		if err != nil {
			result.CampaignError = err.Error()
		} else {
			result.Campaigns = campaigns
		}
	}
	return result, nil
}

// GenerateCampaigns asks for a day-by-day plan for brief and replaces the
// current campaign list with it.
func (o *Orchestrator) GenerateCampaigns(ctx context.Context, brief string) ([]DayCampaign, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, apperrors.Precondition("generate campaigns", "campaign brief is required")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	history := toHistory(o.chat)
	o.mu.Unlock()

	answer, err := o.generate(ctx, "campaigns", generation.Request{
		Instruction: campaignInstruction(brief, o.cfg.Now()),
		History:     history,
	})
	if err != nil {
		o.notify(LevelError, "Campaign generation failed: "+err.Error())
		return nil, err
	}
	campaigns, err := ParseCampaigns(answer)
	if err != nil {
		err = apperrors.External("generation", "campaigns", err)
		o.notify(LevelError, "Campaign plan could not be read; try again")
		return nil, err
	}

	o.mu.Lock()
	o.campaigns = campaigns
	o.notifyLocked(LevelInfo, fmt.Sprintf("Generated %d campaign days", len(campaigns)))
	o.scheduleAutoEmailLocked()
	o.mu.Unlock()

	o.record(ctx, "Generated campaign plan:\n"+summarizeCampaigns(campaigns), "")
	return append([]DayCampaign(nil), campaigns...), nil
}

func (o *Orchestrator) appendChatLocked(role Role, text string) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: o.cfg.Now().UTC(),
	}
	o.chat = append(o.chat, msg)
	return msg
}

func toHistory(chat []ChatMessage) []openai.ChatCompletionMessage {
	if len(chat) > historyWindow {
		chat = chat[len(chat)-historyWindow:]
	}
	out := make([]openai.ChatCompletionMessage, 0, len(chat))
	for _, m := range chat {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return out
}

func campaignInstruction(brief string, now time.Time) string {
	var b strings.Builder
	b.WriteString("Create a 7-day multi-channel marketing campaign plan for this request:\n")
	b.WriteString(brief)
	b.WriteString("\n\nStart from ")
	b.WriteString(now.Format("Monday, January 2, 2006"))
	b.WriteString(". Respond with only a JSON array. Each element must have the string fields ")
	b.WriteString(`"day", "date" (YYYY-MM-DD), "caption", "narrative", "send_time", "channel" (email, sms, social or phone) and "channel_reason".`)
	return b.String()
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseCampaigns extracts the JSON campaign array from a generated answer.
// Code fences and surrounding prose are tolerated.
func ParseCampaigns(answer string) ([]DayCampaign, error) {
	text := strings.TrimSpace(answer)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no campaign array in answer")
	}

	var raw []DayCampaign
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode campaigns: %w", err)
	}
	campaigns := make([]DayCampaign, 0, len(raw))
	for _, c := range raw {
		c.BannerRef = ""
		c.Caption = strings.TrimSpace(c.Caption)
		c.Narrative = strings.TrimSpace(c.Narrative)
		if c.Caption == "" && c.Narrative == "" {
			continue
		}
		campaigns = append(campaigns, c)
	}
	if len(campaigns) == 0 {
		return nil, errors.New("campaign array is empty")
	}
	return campaigns, nil
}

func summarizeCampaigns(campaigns []DayCampaign) string {
	var b strings.Builder
	for _, c := range campaigns {
		fmt.Fprintf(&b, "- %s %s via %s at %s: %s\n", c.Day, c.Date, c.Channel, c.SendTime, c.Caption)
	}
	return strings.TrimSpace(b.String())
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
