package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/observability"
)

// DefaultChannelPrefix namespaces notification channels in Redis.
const DefaultChannelPrefix = "carehub:notify"

// Message is the payload delivered to a recipient.
type Message struct {
	ID         string         `json:"id"`
	Recipient  string         `json:"recipient"`
	Event      string         `json:"event"`
	Content    map[string]any `json:"content,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Dispatcher delivers notifications. Delivery is fire-and-forget from the
// caller's point of view: callers log returned errors and move on.
type Dispatcher interface {
	Notify(ctx context.Context, recipient, event string, content map[string]any) error
}

func newMessage(recipient, event string, content map[string]any) Message {
	return Message{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Event:      event,
		Content:    content,
		OccurredAt: time.Now().UTC(),
	}
}

// RedisDispatcher publishes messages as JSON on <prefix>:<recipient>.
type RedisDispatcher struct {
	client *redis.Client
	prefix string
}

// NewRedisDispatcher creates a dispatcher on client. An empty prefix uses
// DefaultChannelPrefix.
func NewRedisDispatcher(client *redis.Client, prefix string) *RedisDispatcher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisDispatcher{client: client, prefix: prefix}
}

// Channel returns the channel a recipient's messages are published on.
func (d *RedisDispatcher) Channel(recipient string) string {
	return fmt.Sprintf("%s:%s", d.prefix, recipient)
}

// Notify publishes one message.
func (d *RedisDispatcher) Notify(ctx context.Context, recipient, event string, content map[string]any) error {
	payload, err := json.Marshal(newMessage(recipient, event, content))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := d.client.Publish(ctx, d.Channel(recipient), payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// LogDispatcher writes notifications to a logger. It is the fallback when no
// Redis is configured.
type LogDispatcher struct {
	logger logrus.FieldLogger
}

// NewLogDispatcher creates a dispatcher that logs at info level.
func NewLogDispatcher(logger logrus.FieldLogger) *LogDispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(_ context.Context, recipient, event string, content map[string]any) error {
	d.logger.WithFields(logrus.Fields{
		"recipient": recipient,
		"event":     event,
		"content":   content,
	}).Info("notification")
	return nil
}
