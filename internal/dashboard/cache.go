package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// Cache holds the last fetched appointment list. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]appointments.Record, bool, error)
	Set(ctx context.Context, key string, records []appointments.Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	records   []appointments.Record
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]appointments.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return cloneRecords(e.records), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, records []appointments.Record, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{records: cloneRecords(records)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func cloneRecords(in []appointments.Record) []appointments.Record {
	if in == nil {
		return nil
	}
	out := make([]appointments.Record, len(in))
	copy(out, in)
	return out
}

const feedKeyPrefix = "clinic:appointments:"

// RedisCache stores the appointment list as JSON with a TTL so several
// gateway instances share one backend fetch.
type RedisCache struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{
		redis:  client,
		tracer: otel.Tracer("clinic.internal.dashboard.cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]appointments.Record, bool, error) {
	ctx, span := c.tracer.Start(ctx, "dashboard.cache.get")
	defer span.End()

	data, err := c.redis.Get(ctx, feedKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dashboard: cache get: %w", err)
	}
	var records []appointments.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("dashboard: cache decode: %w", err)
	}
	return records, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, records []appointments.Record, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "dashboard.cache.set")
	defer span.End()

	if records == nil {
		records = []appointments.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("dashboard: cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, feedKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("dashboard: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, feedKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dashboard: cache delete: %w", err)
	}
	return nil
}
