package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// RedisSource subscribes to a pub/sub channel that the backend (or a
// sibling gateway) publishes events on.
type RedisSource struct {
	client  *redis.Client
	channel string
	backoff Backoff
	now     func() time.Time
	logger  *logging.Logger
}

// NewRedisSource creates a source reading channel.
func NewRedisSource(client *redis.Client, channel string, backoff Backoff, logger *logging.Logger) *RedisSource {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisSource{
		client:  client,
		channel: channel,
		backoff: backoff,
		now:     time.Now,
		logger:  logger.Component("notify.redis"),
	}
}

func (s *RedisSource) Name() string { return "redis" }

// Run subscribes and forwards messages until ctx is done. A broken
// subscription is re-established with backoff.
func (s *RedisSource) Run(ctx context.Context, pub Publisher) error {
	if s.client == nil {
		return fmt.Errorf("notify: redis client is required")
	}
	var delay time.Duration
	for {
		err := s.session(ctx, pub)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay = s.backoff.next(delay)
		s.logger.Warn("redis subscription lost", "channel", s.channel, "error", err, "retry_in", delay.String())
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *RedisSource) session(ctx context.Context, pub Publisher) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so connection errors surface.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to push channel", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("notify: channel %s closed", s.channel)
			}
			evt, err := ParseEvent([]byte(msg.Payload), s.Name(), s.now())
			if err != nil {
				s.logger.Debug("ignoring push message", "error", err)
				continue
			}
			pub.Publish(evt)
		}
	}
}

// RedisAnnouncer publishes events on a channel so every gateway instance
// subscribed with a RedisSource sees them.
type RedisAnnouncer struct {
	client  *redis.Client
	channel string
}

// NewRedisAnnouncer creates an announcer for channel.
func NewRedisAnnouncer(client *redis.Client, channel string) *RedisAnnouncer {
	return &RedisAnnouncer{client: client, channel: channel}
}

// Announce publishes {"type": eventType}.
func (a *RedisAnnouncer) Announce(ctx context.Context, eventType string) error {
	if a == nil || a.client == nil {
		return nil
	}
	body, err := json.Marshal(map[string]string{"type": eventType})
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := a.client.Publish(ctx, a.channel, body).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", a.channel, err)
	}
	return nil
}
