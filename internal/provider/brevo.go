package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Brevo sends transactional email through the Brevo v3 API.
type Brevo struct {
	apiKey    string
	baseURL   string
	fromEmail string
	fromName  string
	client    *http.Client
}

// NewBrevo creates a Brevo client.
func NewBrevo(apiKey, baseURL, fromEmail, fromName string) *Brevo {
	if baseURL == "" {
		baseURL = "https://api.brevo.com"
	}
	return &Brevo{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (b *Brevo) Enabled() bool { return b.apiKey != "" }

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Send delivers one HTML email.
func (b *Brevo) Send(ctx context.Context, to, subject, html string) error {
	if !b.Enabled() {
		return fmt.Errorf("brevo api key not configured")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"sender":      brevoContact{Email: b.fromEmail, Name: b.fromName},
		"to":          []brevoContact{{Email: to}},
		"subject":     subject,
		"htmlContent": html,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v3/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
