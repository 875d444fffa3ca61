package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/carehub/pkg/observability"
)

// Webhook request headers.
const (
	HeaderEvent     = "X-Carehub-Event"
	HeaderEventID   = "X-Carehub-Event-ID"
	HeaderSignature = "X-Carehub-Signature"
)

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffMultiplier <= 1.0 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// delay returns the wait before attempt n+1, after n failed attempts.
func (c RetryConfig) delay(attempts int) time.Duration {
	if attempts <= 1 {
		return c.InitialDelay
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempts-1))
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// WebhookConfig configures a WebhookDispatcher.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Retry   RetryConfig
	Logger  logrus.FieldLogger
}

// WebhookDispatcher POSTs each message as JSON to a fixed URL. When a secret
// is set the body is signed with HMAC-SHA256 in X-Carehub-Signature.
type WebhookDispatcher struct {
	url    string
	secret string
	client *http.Client
	retry  RetryConfig
	logger logrus.FieldLogger
}

// NewWebhookDispatcher creates a dispatcher for cfg.URL.
func NewWebhookDispatcher(cfg WebhookConfig) *WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &WebhookDispatcher{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:  cfg.Retry.withDefaults(),
		logger: cfg.Logger,
	}
}

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("permanent delivery failure")

// Notify delivers one message. Transport errors, 429 and 5xx responses are
// retried with exponential backoff; other 4xx responses fail at once.
func (d *WebhookDispatcher) Notify(ctx context.Context, recipient, event string, content map[string]any) error {
	msg := newMessage(recipient, event, content)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		lastErr = d.send(ctx, msg, payload)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errPermanent) || attempt == d.retry.MaxAttempts {
			break
		}

		wait := d.retry.delay(attempt)
		d.logger.WithFields(logrus.Fields{
			"event":    event,
			"event_id": msg.ID,
			"attempt":  attempt,
			"retry_in": wait.String(),
		}).WithError(lastErr).Warn("webhook delivery failed")

		select {
		case <-ctx.Done():
			return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("webhook delivery failed: %w", lastErr)
}

func (d *WebhookDispatcher) send(ctx context.Context, msg Message, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w: %w", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, msg.Event)
	req.Header.Set(HeaderEventID, msg.ID)
	if d.secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return fmt.Errorf("webhook returned status %d: %w", resp.StatusCode, errPermanent)
	}
}

// Sign returns the HMAC-SHA256 signature of payload in "sha256=<hex>" form.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies a signature produced by Sign.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// Fanout delivers every message to all dispatchers. One failing dispatcher
// does not stop the others; the errors are joined.
type Fanout []Dispatcher

func (f Fanout) Notify(ctx context.Context, recipient, event string, content map[string]any) error {
	var errs []error
	for _, d := range f {
		if err := d.Notify(ctx, recipient, event, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
