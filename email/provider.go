// Package email renders new lectures into one notification and delivers it through a pluggable provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"psut-lecture-notifier/pkg/lecture"
	"psut-lecture-notifier/recipients"
)

// ErrNotConfigured is returned by a provider missing its credentials or sender address.
var ErrNotConfigured = errors.New("email provider not configured")

// Message is one email addressed to every recipient at once.
type Message struct {
	Subject string
	HTML    string
	To      []string
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send delivers msg once. Implementations do not retry.
	Send(ctx context.Context, msg Message) error
}

// Sender sends lecture notifications using a pluggable provider.
type Sender struct {
	provider   Provider
	recipients recipients.Source
	logger     *slog.Logger
}

// New creates a new email sender with the given provider and recipient source.
func New(provider Provider, source recipients.Source, logger *slog.Logger) *Sender {
	return &Sender{
		provider:   provider,
		recipients: source,
		logger:     logger,
	}
}

// Notify sends one email listing all records. Every failure is reported through
// the returned message with ok=false; nothing here is fatal to the caller.
func (s *Sender) Notify(ctx context.Context, records []*lecture.Record) (message string, ok bool) {
	if len(records) == 0 {
		return "No lectures to send", false
	}
	if s.provider == nil {
		return "Email provider not configured", false
	}
	if s.recipients == nil {
		return "Recipient source not configured", false
	}

	to, err := s.recipients.Fetch(ctx)
	if err != nil {
		s.logger.Warn("Failed to load recipients", "error", err)
		return fmt.Sprintf("Failed to load recipients: %v", err), false
	}
	if len(to) == 0 {
		s.logger.Warn("Recipient list is empty")
		return "No recipients found", false
	}

	msg := Message{
		Subject: Subject(len(records)),
		HTML:    RenderBody(records),
		To:      to,
	}

	s.logger.Info("Sending notification email",
		"recipients", len(to),
		"subject", msg.Subject,
		"lecture_count", len(records))

	startTime := time.Now()
	if err := s.provider.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return fmt.Sprintf("Email configuration missing: %v", err), false
		}
		s.logger.Error("Notification email failed",
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err)
		return fmt.Sprintf("Failed to send email: %v", err), false
	}

	s.logger.Info("Email successfully sent",
		"recipients", len(to),
		"duration_ms", time.Since(startTime).Milliseconds())
	return fmt.Sprintf("Email sent to %d recipients about %d new lectures.", len(to), len(records)), true
}
