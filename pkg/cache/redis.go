package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateCache keeps the last known validation state of ads so the public query
// endpoint can answer review/rejected lookups without hitting Postgres.
type StateCache struct {
	client *redis.Client
}

// NewStateCache creates a new Redis-backed state cache.
func NewStateCache(host, port, password string) (*StateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		DB:           0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StateCache{client: client}, nil
}

// Close closes the Redis connection
func (c *StateCache) Close() error {
	return c.client.Close()
}

// GetAdState returns the cached state for an ad, or empty string on a miss.
func (c *StateCache) GetAdState(ctx context.Context, adID string) (string, error) {
	key := fmt.Sprintf("ad_state:%s", adID)

	state, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil // Not found
	}
	if err != nil {
		return "", fmt.Errorf("failed to get ad state from Redis: %w", err)
	}

	return state, nil
}

// SetAdState caches the state of an ad.
func (c *StateCache) SetAdState(ctx context.Context, adID, state string, ttl time.Duration) error {
	key := fmt.Sprintf("ad_state:%s", adID)

	err := c.client.Set(ctx, key, state, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set ad state in Redis: %w", err)
	}

	return nil
}

// DeleteAdState removes a cached ad state.
func (c *StateCache) DeleteAdState(ctx context.Context, adID string) error {
	key := fmt.Sprintf("ad_state:%s", adID)

	err := c.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete ad state from Redis: %w", err)
	}

	return nil
}
