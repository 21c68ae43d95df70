package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/dashboard"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildFeedCache picks the staff feed cache: Redis when a client is
// available so gateway replicas share one copy, in-process otherwise.
func BuildFeedCache(redisClient *redis.Client, logger *logging.Logger) dashboard.Cache {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Info("appointment cache in memory")
		return dashboard.NewMemoryCache()
	}
	logger.Info("appointment cache in redis")
	return dashboard.NewRedisCache(redisClient)
}

// BuildPushSource wires the configured push transport. It returns nil when
// push is disabled.
func BuildPushSource(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (notify.Source, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.PushSource {
	case appconfig.PushSourceNone, "":
		logger.Info("push notifications disabled")
		return nil, nil
	case appconfig.PushSourceWebSocket:
		if strings.TrimSpace(cfg.PushWebSocketURL) == "" {
			return nil, errors.New("bootstrap: websocket push needs PUSH_WS_URL")
		}
		return notify.NewWebSocketSource(cfg.PushWebSocketURL, http.Header{}, notify.DefaultBackoff(), logger), nil
	case appconfig.PushSourceRedis:
		if redisClient == nil {
			return nil, errors.New("bootstrap: redis push needs a reachable REDIS_ADDR")
		}
		return notify.NewRedisSource(redisClient, cfg.RedisEventsChannel, notify.DefaultBackoff(), logger), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown push source %q", cfg.PushSource)
}

// BuildAnnouncer returns the cross-instance change announcer, or nil when
// push does not go through Redis.
func BuildAnnouncer(cfg *appconfig.Config, redisClient *redis.Client) dashboard.Announcer {
	if cfg == nil || cfg.PushSource != appconfig.PushSourceRedis || redisClient == nil {
		return nil
	}
	return notify.NewRedisAnnouncer(redisClient, cfg.RedisEventsChannel)
}
