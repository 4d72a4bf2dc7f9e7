package calls

import (
	"bytes"
	"encoding/xml"
	"strings"
)

const (
	voiceName     = "alice"
	voiceLanguage = "en-US"

	// MissedInputLine is spoken when the customer says nothing.
	MissedInputLine = "I didn't catch that. Let me continue."
	// FollowUpLine answers the customer's first response.
	FollowUpLine = "Thank you for that feedback. Is there anything else you'd like to share about our campaigns?"
	// ClosingLine ends every call.
	ClosingLine = "Thank you for your time and valuable feedback. Have a great day!"
	// DefaultGreeting is used when a call has no stored script.
	DefaultGreeting = "Hello, this is a call about our recent marketing campaigns. How are you doing today?"
)

// GatherTwiML speaks script inside a speech/DTMF gather that posts the
// answer to {webhookBase}/phone-call/handle-input.
func GatherTwiML(script, webhookBase string) string {
	action := strings.TrimRight(webhookBase, "/") + "/phone-call/handle-input"
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<Response>")
	b.WriteString(`<Gather input="speech dtmf" timeout="10" speechTimeout="auto" numDigits="1" method="POST" action="`)
	xmlEscape(&b, action)
	b.WriteString(`">`)
	say(&b, script)
	b.WriteString("</Gather>")
	say(&b, MissedInputLine)
	b.WriteString(`<Redirect method="POST">`)
	xmlEscape(&b, action)
	b.WriteString("</Redirect>")
	b.WriteString("</Response>")
	return b.String()
}

// ClosingTwiML speaks text, the closing line, and hangs up.
func ClosingTwiML(text string) string {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<Response>")
	if strings.TrimSpace(text) != "" {
		say(&b, text)
	}
	say(&b, ClosingLine)
	b.WriteString("<Hangup/>")
	b.WriteString("</Response>")
	return b.String()
}

func say(b *bytes.Buffer, text string) {
	b.WriteString(`<Say voice="` + voiceName + `" language="` + voiceLanguage + `">`)
	xmlEscape(b, text)
	b.WriteString("</Say>")
}

func xmlEscape(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
