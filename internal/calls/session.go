// Package calls places outbound feedback calls and follows them to completion.
package calls

import (
	"strings"
	"time"
)

// Status is the normalized lifecycle state of a call.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNoAnswer:
		return true
	}
	return false
}

// ParseStatus maps a provider status onto the normalized set. busy and
// canceled collapse into failed; unknown values map to queued.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated", "":
		return StatusQueued
	case "ringing":
		return StatusRinging
	case "in-progress", "in_progress", "answered":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "failed", "busy", "canceled", "cancelled":
		return StatusFailed
	case "no-answer", "no_answer":
		return StatusNoAnswer
	default:
		return StatusQueued
	}
}

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
	RoleSystem   Role = "system"
)

// Turn is one line of a call transcript.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at,omitempty"`
}

// Session is the observable state of one placed call.
type Session struct {
	SID               string    `json:"sid"`
	Phone             string    `json:"phone"`
	CustomerName      string    `json:"customer_name,omitempty"`
	CustomerID        string    `json:"customer_id,omitempty"`
	Script            string    `json:"script"`
	Status            Status    `json:"status"`
	DurationSeconds   int       `json:"duration_seconds,omitempty"`
	Transcript        []Turn    `json:"transcript"`
	CustomerResponses []string  `json:"customer_responses"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	out.Transcript = append([]Turn(nil), s.Transcript...)
	out.CustomerResponses = append([]string(nil), s.CustomerResponses...)
	return out
}

// CustomerLines returns the text of every customer turn.
func CustomerLines(turns []Turn) []string {
	lines := []string{}
	for _, t := range turns {
		if t.Role == RoleCustomer && strings.TrimSpace(t.Text) != "" {
			lines = append(lines, t.Text)
		}
	}
	return lines
}

// FormatTranscript renders turns as "Role: text" lines.
func FormatTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Agent"
		switch t.Role {
		case RoleCustomer:
			label = "Customer"
		case RoleSystem:
			label = "System"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Text))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
