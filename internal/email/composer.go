package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/outreach-console/internal/generation"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// Turn is one conversation message used as composition context.
type Turn struct {
	Role string // operator or assistant
	Text string
}

// CampaignSummary is the part of a generated campaign the composer uses.
type CampaignSummary struct {
	Day     string
	Date    string
	Caption string
	Channel string
}

// ComposeInput is the conversation context for one composition.
type ComposeInput struct {
	History   []Turn
	Campaigns []CampaignSummary
}

// Source says where a composition came from.
type Source string

const (
	SourceParsed   Source = "parsed"
	SourceFallback Source = "fallback"
	SourceOperator Source = "operator"
)

// Composition is a subject/body pair. Neither field is ever empty.
type Composition struct {
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Source   Source    `json:"source"`
	Strategy ParseKind `json:"strategy,omitempty"`
}

// ComposerConfig tunes the composer.
type ComposerConfig struct {
	ContextSize int
	UserID      string
	Timeout     time.Duration
	// Now is the clock used for date-based subjects.
	Now func() time.Time
}

// Composer derives an email from a conversation via the generation service.
type Composer struct {
	gen     generation.Generator
	cfg     ComposerConfig
	parsers []parser
	logger  *logging.Logger
}

// NewComposer wires a composer to a generator.
func NewComposer(gen generation.Generator, cfg ComposerConfig, logger *logging.Logger) *Composer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Composer{
		gen:     gen,
		cfg:     cfg,
		parsers: []parser{parseMarkers, parseBodyOnly, parseRaw},
		logger:  logger,
	}
}

// Compose asks the generation service for an email and parses the answer.
// A failed call, an empty answer or an unparseable answer yields the
// deterministic template, so the result always has a subject and body.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) Composition {
	defaults := c.defaultSubject(in.Campaigns)

	if c.gen != nil {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		res, err := c.gen.Generate(callCtx, generation.Request{
			Instruction:     BuildInstruction(in),
			ContextSize:     c.cfg.ContextSize,
			IncludeMemories: true,
			UserID:          c.cfg.UserID,
		})
		cancel()
		switch {
		case err != nil:
			c.logger.Warn("email generation failed, using template", "error", err)
		case strings.TrimSpace(res.Answer) == "":
			c.logger.Warn("email generation returned empty answer, using template")
		default:
			if parsed := c.Parse(res.Answer, defaults); parsed.Kind != ParseNone {
				return Composition{
					Subject:  parsed.Subject,
					Body:     parsed.Body,
					Source:   SourceParsed,
					Strategy: parsed.Kind,
				}
			}
		}
	}

	return c.Fallback(in)
}

// Parse runs the parser strategies in priority order.
func (c *Composer) Parse(answer, defaultSubject string) ParseResult {
	cleaned := strings.TrimSpace(strings.ReplaceAll(answer, "**", ""))
	if cleaned == "" {
		return ParseResult{Kind: ParseNone}
	}
	for _, p := range c.parsers {
		if res := p(cleaned, defaultSubject); res.Kind != ParseNone {
			return res
		}
	}
	return ParseResult{Kind: ParseNone}
}

// Fallback builds the deterministic template email.
func (c *Composer) Fallback(in ComposeInput) Composition {
	var b strings.Builder
	b.WriteString("Hi {{ name | default: \"there\" }},\n\n")

	var highlights []string
	for _, turn := range in.History {
		if turn.Role != "assistant" {
			continue
		}
		if text := strings.TrimSpace(turn.Text); text != "" {
			highlights = append(highlights, truncate(text, 400))
		}
	}
	if len(highlights) > 3 {
		highlights = highlights[len(highlights)-3:]
	}
	for _, h := range highlights {
		b.WriteString(h)
		b.WriteString("\n\n")
	}

	if len(in.Campaigns) > 0 {
		b.WriteString("Here's what's coming up:\n")
		for _, camp := range in.Campaigns {
			line := strings.TrimSpace(camp.Caption)
			if line == "" {
				continue
			}
			label := strings.TrimSpace(camp.Day)
			if camp.Date != "" {
				label = strings.TrimSpace(label + " (" + camp.Date + ")")
			}
			if label != "" {
				line = label + ": " + line
			}
			b.WriteString("- " + line + "\n")
		}
		b.WriteString("\n")
	}
	if len(highlights) == 0 && len(in.Campaigns) == 0 {
		b.WriteString("We have exciting news and special offers to share with you soon. Stay tuned!\n\n")
	}
	b.WriteString("Thank you for being a valued customer!\n\nBest regards,\nThe Marketing Team")

	return Composition{
		Subject: c.defaultSubject(in.Campaigns),
		Body:    b.String(),
		Source:  SourceFallback,
	}
}

func (c *Composer) defaultSubject(campaigns []CampaignSummary) string {
	if len(campaigns) > 0 {
		caption := firstLine(campaigns[0].Caption)
		if caption != "" {
			return truncate(caption, 78)
		}
	}
	return "Our latest offers for " + c.cfg.Now().Format("January 2, 2006")
}

// BuildInstruction assembles the prompt sent to the generation service.
func BuildInstruction(in ComposeInput) string {
	var b strings.Builder
	b.WriteString("Write one marketing email for our customers based on the conversation and campaign plan below.\n")
	b.WriteString("Address the reader with the placeholder {{ name }}.\n")
	b.WriteString("Respond in exactly this format and nothing else:\n")
	b.WriteString("Subject: <subject line>\nBody: <email body>\n")

	if len(in.History) > 0 {
		b.WriteString("\nConversation:\n")
		for _, turn := range in.History {
			role := "Operator"
			if turn.Role == "assistant" {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(turn.Text))
		}
	}
	if len(in.Campaigns) > 0 {
		b.WriteString("\nCampaigns:\n")
		for _, camp := range in.Campaigns {
			fmt.Fprintf(&b, "- %s %s [%s]: %s\n", camp.Day, camp.Date, camp.Channel, strings.TrimSpace(camp.Caption))
		}
	}
	return b.String()
}

// ParseKind tags which strategy produced a ParseResult.
type ParseKind string

const (
	ParseNone     ParseKind = ""
	ParseMarkers  ParseKind = "markers"
	ParseBodyOnly ParseKind = "body_only"
	ParseRaw      ParseKind = "raw"
)

// ParseResult is the outcome of one parser strategy.
type ParseResult struct {
	Kind    ParseKind
	Subject string
	Body    string
}

type parser func(answer, defaultSubject string) ParseResult

var (
	subjectLine = regexp.MustCompile(`(?im)^[ \t#>-]*subject[ \t]*:[ \t]*(.*)$`)
	bodyMarker  = regexp.MustCompile(`(?im)^[ \t#>-]*body[ \t]*:[ \t]*`)
)

// parseMarkers requires both Subject: and Body: markers with content.
func parseMarkers(answer, _ string) ParseResult {
	subject := matchedSubject(answer)
	body := bodyAfterMarker(answer)
	if subject == "" || body == "" {
		return ParseResult{Kind: ParseNone}
	}
	return ParseResult{Kind: ParseMarkers, Subject: subject, Body: body}
}

// parseBodyOnly accepts a Body: marker and defaults the subject.
func parseBodyOnly(answer, defaultSubject string) ParseResult {
	body := bodyAfterMarker(answer)
	if body == "" {
		return ParseResult{Kind: ParseNone}
	}
	return ParseResult{Kind: ParseBodyOnly, Subject: defaultSubject, Body: body}
}

// parseRaw treats the whole answer as the body, minus any subject line.
func parseRaw(answer, defaultSubject string) ParseResult {
	subject := matchedSubject(answer)
	if subject == "" {
		subject = defaultSubject
	}
	body := strings.TrimSpace(subjectLine.ReplaceAllString(answer, ""))
	if body == "" {
		return ParseResult{Kind: ParseNone}
	}
	return ParseResult{Kind: ParseRaw, Subject: subject, Body: body}
}

func matchedSubject(answer string) string {
	m := subjectLine.FindStringSubmatch(answer)
	if m == nil {
		return ""
	}
	return strings.Trim(strings.TrimSpace(m[1]), `"'`)
}

func bodyAfterMarker(answer string) string {
	loc := bodyMarker.FindStringIndex(answer)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(answer[loc[1]:])
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
