package calls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"queued":      StatusQueued,
		"initiated":   StatusQueued,
		"ringing":     StatusRinging,
		"in-progress": StatusInProgress,
		"completed":   StatusCompleted,
		"failed":      StatusFailed,
		"busy":        StatusFailed,
		"canceled":    StatusFailed,
		"no-answer":   StatusNoAnswer,
		"mystery":     StatusQueued,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseStatus(raw), raw)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusNoAnswer.Terminal())
	assert.False(t, StatusRinging.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, StatusQueued.Terminal())
}

func TestFormatPhone(t *testing.T) {
	tests := map[string]string{
		"(555) 123-4567":   "+15551234567",
		"1-555-123-4567":   "+15551234567",
		"+44 20 7946 0958": "+442079460958",
		"12345":            "+12345",
		"no digits":        "",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatPhone(in), in)
	}
}

func TestGatherTwiML(t *testing.T) {
	xml := GatherTwiML("Hi <Ana> & friends", "https://example.com/")
	assert.Contains(t, xml, `action="https://example.com/phone-call/handle-input"`)
	assert.Contains(t, xml, `input="speech dtmf"`)
	assert.Contains(t, xml, `<Say voice="alice" language="en-US">Hi &lt;Ana&gt; &amp; friends</Say>`)
	assert.Contains(t, xml, MissedInputLine[:5])
	assert.True(t, strings.HasSuffix(xml, "</Redirect></Response>"))
}

func TestClosingTwiMLHangsUp(t *testing.T) {
	xml := ClosingTwiML(FollowUpLine)
	assert.Contains(t, xml, "<Hangup/>")
	assert.Contains(t, xml, "Have a great day!")
}

func TestSessionCloneIsIndependent(t *testing.T) {
	s := Session{Transcript: []Turn{{Role: RoleAgent, Text: "hi"}}, CustomerResponses: []string{"yes"}}
	c := s.Clone()
	c.Transcript[0].Text = "changed"
	c.CustomerResponses[0] = "no"
	assert.Equal(t, "hi", s.Transcript[0].Text)
	assert.Equal(t, "yes", s.CustomerResponses[0])
}

func TestFormatTranscript(t *testing.T) {
	out := FormatTranscript([]Turn{{Role: RoleAgent, Text: "Hello"}, {Role: RoleCustomer, Text: " Hi "}})
	assert.Equal(t, "Agent: Hello\nCustomer: Hi", out)
}
