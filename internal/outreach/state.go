package outreach

import (
	"time"

	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/internal/email"
)

// Role identifies who wrote a chat message.
type Role string

const (
	RoleOperator  Role = "operator"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the operator conversation. Messages are only
// ever appended.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DayCampaign is one day of a generated campaign plan.
type DayCampaign struct {
	Day           string `json:"day"`
	Date          string `json:"date"`
	BannerRef     string `json:"banner_ref,omitempty"`
	Caption       string `json:"caption"`
	Narrative     string `json:"narrative"`
	SendTime      string `json:"send_time"`
	Channel       string `json:"channel"`
	ChannelReason string `json:"channel_reason"`
}

// EmailDraft is the current bulk email and the state of its generation guard.
type EmailDraft struct {
	Subject    string       `json:"subject"`
	Body       string       `json:"body"`
	Source     email.Source `json:"source,omitempty"`
	Generating bool         `json:"generating"`
	Locked     bool         `json:"locked"`
}

// ScriptState holds the call script variants. Only Saved is used to call.
type ScriptState struct {
	Generated  string `json:"generated"`
	Draft      string `json:"draft"`
	Saved      string `json:"saved"`
	Generating bool   `json:"generating"`
}

// Target is the person the next call goes to.
type Target struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	// Auto is set when the target was picked from the top of the ranking.
	Auto   bool `json:"auto"`
	Manual bool `json:"manual"`
}

// Feedback is the operator's verdict on a completed call.
type Feedback struct {
	CallSID    string    `json:"call_sid"`
	Positive   bool      `json:"positive"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Level grades a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a non-blocking message for the operator.
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is a deep copy of the observable workflow state.
type Snapshot struct {
	Chat           []ChatMessage               `json:"chat"`
	Campaigns      []DayCampaign               `json:"campaigns"`
	Email          EmailDraft                  `json:"email"`
	Ranked         []customers.RankedCustomer  `json:"ranked_customers"`
	RankedTotal    int                         `json:"ranked_total"`
	RankedAt       *time.Time                  `json:"ranked_at,omitempty"`
	Target         *Target                     `json:"target,omitempty"`
	Script         ScriptState                 `json:"script"`
	ActiveCall     *calls.Session              `json:"active_call,omitempty"`
	LastCall       *calls.Session              `json:"last_call,omitempty"`
	Feedback       *Feedback                   `json:"feedback,omitempty"`
	LastBulkResult *email.BulkResult           `json:"last_bulk_result,omitempty"`
	SendingEmail   bool                        `json:"sending_email"`
	Notifications  []Notification              `json:"notifications"`
}

// emailGuard is the single-flight latch shared by every auto-email trigger.
// epoch changes on reset or operator edit so results of superseded
// generations are dropped.
type emailGuard struct {
	inFlight bool
	done     bool
	epoch    uint64
}

func (g emailGuard) open() bool {
	return !g.inFlight && !g.done
}
