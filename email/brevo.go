package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBrevoEndpoint is Brevo's transactional email API.
const DefaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// StatusError is returned when the delivery service answers with a status other than 200 or 201.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// BrevoProvider sends emails via Brevo (formerly Sendinblue) API.
type BrevoProvider struct {
	client   *http.Client
	logger   *slog.Logger
	apiKey   string
	fromAddr string
	fromName string
	endpoint string
}

// NewBrevoProvider creates a new Brevo email provider.
// An empty endpoint selects DefaultBrevoEndpoint.
func NewBrevoProvider(apiKey, fromAddr, fromName, endpoint string, logger *slog.Logger) *BrevoProvider {
	if endpoint == "" {
		endpoint = DefaultBrevoEndpoint
	}
	return &BrevoProvider{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// brevoSendRequest represents the Brevo API send email request.
type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
	To      []brevoContact `json:"to"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Send posts msg to Brevo once. Only 200 and 201 count as accepted.
func (b *BrevoProvider) Send(ctx context.Context, msg Message) error {
	if b.apiKey == "" || b.fromAddr == "" {
		return fmt.Errorf("brevo API key and sender address are required: %w", ErrNotConfigured)
	}

	reqBody := brevoSendRequest{
		Sender: brevoContact{
			Email: b.fromAddr,
			Name:  b.fromName,
		},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, to := range msg.To {
		reqBody.To = append(reqBody.To, brevoContact{Email: to})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	b.logger.Info("Brevo API request starting",
		"method", "POST",
		"endpoint", "smtp/email",
		"recipients", len(msg.To),
		"subject", msg.Subject)

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", b.apiKey)

	resp, err := b.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.logger.Warn("Brevo API rejected email",
			"status_code", resp.StatusCode,
			"duration_ms", duration.Milliseconds())
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	b.logger.Info("Brevo API request completed",
		"endpoint", "smtp/email",
		"recipients", len(msg.To),
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}
