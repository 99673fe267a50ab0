package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// GmailProvider sends emails via Gmail API.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewGmailProvider creates a new Gmail email provider.
func NewGmailProvider(service *gmail.Service, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service: service,
		logger:  logger,
	}
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
// RFC 5322 headers are newline-delimited, so any newline in a header value allows
// arbitrary headers or body content to be injected.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// encodeSubject encodes non-ASCII subjects as an RFC 2047 encoded word.
func encodeSubject(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}

// buildMIME renders msg as a raw RFC 5322 message. Recipients go in Bcc so
// subscribers do not see each other's addresses.
func buildMIME(msg Message) string {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = sanitizeEmailHeader(addr); addr != "" {
			to = append(to, addr)
		}
	}

	// From is set by Gmail based on the authenticated account.
	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(to, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeSubject(sanitizeEmailHeader(msg.Subject))))
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTML)
	return b.String()
}

// Send sends one message via the Gmail API.
func (g *GmailProvider) Send(ctx context.Context, msg Message) error {
	if g.service == nil {
		return fmt.Errorf("gmail service is required: %w", ErrNotConfigured)
	}
	encoded := base64.URLEncoding.EncodeToString([]byte(buildMIME(msg)))

	g.logger.Info("Gmail API request starting",
		"method", "POST",
		"endpoint", "users.messages.send",
		"recipients", len(msg.To),
		"subject", msg.Subject)

	startTime := time.Now()
	_, err := g.service.Users.Messages.Send("me", &gmail.Message{
		Raw: encoded,
	}).Context(ctx).Do()
	duration := time.Since(startTime)
	if err != nil {
		g.logger.Warn("Gmail API send failed",
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return fmt.Errorf("gmail send: %w", err)
	}

	g.logger.Info("Gmail API request completed",
		"endpoint", "users.messages.send",
		"recipients", len(msg.To),
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}
