/**
 * Redis donor cache
 *
 * Caches donor records by ID as JSON and publishes status changes on the
 * donor:events channel so other instances (and dashboards) can react.
 */

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bloodmate/donor-service/internal/domain"
)

const (
	defaultKeyPrefix = "donor"
	// EventsChannel receives a message for every donor status change
	EventsChannel = "donor:events"
)

// StatusEvent is the payload published on EventsChannel
type StatusEvent struct {
	Event     string `json:"event"`
	DonorID   int64  `json:"donorId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// RedisCacheConfig holds cache configuration
type RedisCacheConfig struct {
	RedisURL  string
	TTL       time.Duration
	KeyPrefix string
}

// RedisCache stores donor records in Redis
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg *RedisCacheConfig) (*RedisCache, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisCache{client: client, ttl: ttl, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(id int64) string {
	return fmt.Sprintf("%s:%d", c.keyPrefix, id)
}

// Get returns the cached donor, reporting false on a miss
func (c *RedisCache) Get(ctx context.Context, id int64) (*domain.Donor, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", c.key(id), err)
	}

	var d domain.Donor
	if err := json.Unmarshal(data, &d); err != nil {
		// a corrupt entry is treated as a miss and dropped
		c.client.Del(ctx, c.key(id))
		return nil, false, nil
	}
	return &d, true, nil
}

// Set stores the donor with the configured TTL (0 keeps it until invalidated)
func (c *RedisCache) Set(ctx context.Context, d *domain.Donor) error {
	if d == nil {
		return fmt.Errorf("donor is required")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal donor: %w", err)
	}

	if err := c.client.Set(ctx, c.key(d.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(d.ID), err)
	}
	return nil
}

// Invalidate removes a donor from the cache
func (c *RedisCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key(id), err)
	}
	return nil
}

// PublishStatusChange announces a status change on EventsChannel
func (c *RedisCache) PublishStatusChange(ctx context.Context, id int64, status string) error {
	event := StatusEvent{
		Event:     "donor:status",
		DonorID:   id,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := c.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
