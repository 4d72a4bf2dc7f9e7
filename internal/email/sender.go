package email

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

// Sender delivers one rendered email and returns the provider message id.
// Implementations can be swapped (SendGrid, SES, stub) without changing callers.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Message is a single rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional
}

// StubSender logs instead of sending. It keeps the messages for inspection.
type StubSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []Message
}

// NewStubSender creates a stub sender that logs but doesn't send.
func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger}
}

// Send records the message.
func (s *StubSender) Send(ctx context.Context, msg Message) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("stub email sender: would send email", "to", logging.MaskEmail(msg.To), "subject", msg.Subject)
	return "stub-" + uuid.NewString(), nil
}

// Sent returns a copy of the recorded messages.
func (s *StubSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
