// Package notify delivers a copy of each accepted submission to an outbound
// channel. Delivery is best-effort: at most once, never retried, and never
// able to fail the write that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// ErrSkipped is returned by notifiers that deliberately deliver nothing.
var ErrSkipped = errors.New("notification skipped")

// Message is the notification payload for one submission.
type Message struct {
	SubmissionID int64
	Name         string
	Email        string
	Body         string
	IPAddress    string
	SubmittedAt  time.Time
}

// MessageFor builds the notification for a stored submission.
func MessageFor(sub types.Submission) Message {
	return Message{
		SubmissionID: sub.ID,
		Name:         sub.Name,
		Email:        sub.Email,
		Body:         sub.Message,
		IPAddress:    sub.IPAddress,
		SubmittedAt:  sub.SubmittedAt,
	}
}

// Subject is the email subject line for m.
func (m Message) Subject() string {
	return fmt.Sprintf("New contact form submission from %s", m.Name)
}

// Text is the plain-text email body for m.
func (m Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Submission #%d\n\n", m.SubmissionID)
	fmt.Fprintf(&b, "Name:    %s\n", m.Name)
	fmt.Fprintf(&b, "Email:   %s\n", m.Email)
	fmt.Fprintf(&b, "IP:      %s\n", m.IPAddress)
	fmt.Fprintf(&b, "Time:    %s\n\n", m.SubmittedAt.UTC().Format(time.RFC3339))
	b.WriteString(m.Body)
	b.WriteString("\n")
	return b.String()
}

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	// Name identifies the backend in logs and health output.
	Name() string
}

// LogNotifier writes a redacted line per submission instead of sending mail.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("new submission",
		"component", "notify",
		"action", "admin_alert",
		"submission_id", msg.SubmissionID,
		"email", RedactEmail(msg.Email),
	)
	return nil
}

// Noop delivers nothing; every attempt is recorded as skipped.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Notify(context.Context, Message) error { return ErrSkipped }

// RedactEmail masks the local part of an address for logging.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
