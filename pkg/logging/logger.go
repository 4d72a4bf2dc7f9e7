package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so every outreach component shares one JSON log stream.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger on stdout at the given level.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a JSON logger that writes to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		l = Default()
	}
	return &Logger{Logger: l.Logger.With("component", name)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MaskPhone keeps the last 4 digits of a phone number for logging.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
