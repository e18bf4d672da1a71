package notify

import (
	"context"
	"fmt"
	"time"

	"tftpwatch/core"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// redisPayload is published for every message. Alert is omitted for
// transfer notices.
type redisPayload struct {
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	Error   bool        `json:"error"`
	Alert   *core.Alert `json:"alert,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// RedisSink publishes JSON messages on a Redis pub/sub channel
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a sink publishing on channel
func NewRedisSink(addr, password string, db int, channel string) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisSink{client: client, channel: channel}
}

// Name implements Sink
func (s *RedisSink) Name() string { return "redis" }

// Ping checks the connection
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Send implements Sink
func (s *RedisSink) Send(ctx context.Context, msg Message) error {
	payload := redisPayload{
		Subject: msg.Subject,
		Body:    msg.Body,
		Error:   msg.Error,
		Alert:   msg.Alert,
		SentAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.channel, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.client.Close()
}
