// Package notify delivers run completion notifications to the automation
// collaborator.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/types"
)

// Header names set on every webhook delivery
const (
	SignatureHeader = "X-Ideaforge-Signature"
	EventHeader     = "X-Ideaforge-Event"
	DeliveryHeader  = "X-Ideaforge-Delivery"
)

// DefaultTimeout bounds a single delivery
const DefaultTimeout = 10 * time.Second

// WebhookConfig configures the webhook notifier
type WebhookConfig struct {
	URL     string
	Secret  string // optional; signs the body when set
	Timeout time.Duration
}

// Webhook POSTs notifications as JSON. Each notification is attempted once;
// redelivery is left to the receiver.
type Webhook struct {
	url    string
	secret []byte
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(cfg WebhookConfig, logger zerolog.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Notify implements pipeline.Notifier.
func (w *Webhook) Notify(ctx context.Context, n types.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, "run."+string(n.Status))
	req.Header.Set(DeliveryHeader, n.RunID.String())
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	w.logger.Info().Str("run_id", n.RunID.String()).Str("status", string(n.Status)).Msg("notification delivered")
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature (with or without the "sha256=" prefix)
// matches body. Receivers use it to authenticate deliveries.
func Verify(secret, body []byte, signature string) bool {
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Noop discards notifications. It is used when no webhook is configured.
type Noop struct {
	Logger zerolog.Logger
}

// Notify implements pipeline.Notifier.
func (n Noop) Notify(_ context.Context, note types.Notification) error {
	n.Logger.Debug().Str("run_id", note.RunID.String()).Str("status", string(note.Status)).Msg("notification skipped, no webhook configured")
	return nil
}
