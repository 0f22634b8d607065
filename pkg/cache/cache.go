// Package cache provides the authorization decision cache. Checkout access
// decisions are cached per (document, principal) pair; any grant or document
// mutation invalidates the document's entries.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is a cached access verdict.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// DecisionCache stores access decisions for checkout authorization.
type DecisionCache interface {
	// Get returns the cached decision and whether one was present.
	Get(ctx context.Context, documentID, principal string) (Decision, bool, error)

	// Set stores a decision. A non-positive ttl stores nothing.
	Set(ctx context.Context, documentID, principal string, decision Decision, ttl time.Duration) error

	// InvalidateDocument removes every cached decision for a document.
	InvalidateDocument(ctx context.Context, documentID string) error

	Close() error
}

// RedisDecisionCache implements DecisionCache for Redis
type RedisDecisionCache struct {
	client *redis.Client
	prefix string
}

// RedisCacheConfig holds configuration for Redis cache
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisDecisionCache creates a new Redis decision cache
func NewRedisDecisionCache(config RedisCacheConfig) (*RedisDecisionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "docvault:authz:"
	}

	return &RedisDecisionCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisDecisionCache) key(documentID, principal string) string {
	return c.prefix + documentID + "|" + principal
}

// Get returns the cached decision for a (document, principal) pair
func (c *RedisDecisionCache) Get(ctx context.Context, documentID, principal string) (Decision, bool, error) {
	val, err := c.client.Get(ctx, c.key(documentID, principal)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read decision cache: %w", err)
	}

	switch Decision(val) {
	case DecisionAllow, DecisionDeny:
		return Decision(val), true, nil
	default:
		// Unknown payload; treat as a miss so the caller re-evaluates.
		return "", false, nil
	}
}

// Set stores a decision with the given TTL
func (c *RedisDecisionCache) Set(ctx context.Context, documentID, principal string, decision Decision, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(documentID, principal), string(decision), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write decision cache: %w", err)
	}
	return nil
}

// InvalidateDocument removes every cached decision for a document
func (c *RedisDecisionCache) InvalidateDocument(ctx context.Context, documentID string) error {
	// Find all keys for this document across principals
	iter := c.client.Scan(ctx, 0, c.prefix+documentID+"|*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear decision cache: %w", err)
		}
	}

	return nil
}

// Close closes the Redis connection
func (c *RedisDecisionCache) Close() error {
	return c.client.Close()
}

// NoOpDecisionCache is a decision cache that stores nothing (used when
// caching is disabled or no Redis is configured). Every lookup is a miss.
type NoOpDecisionCache struct{}

// NewNoOpDecisionCache creates a new no-op decision cache
func NewNoOpDecisionCache() *NoOpDecisionCache {
	return &NoOpDecisionCache{}
}

// Get always misses
func (c *NoOpDecisionCache) Get(ctx context.Context, documentID, principal string) (Decision, bool, error) {
	return "", false, nil
}

// Set does nothing
func (c *NoOpDecisionCache) Set(ctx context.Context, documentID, principal string, decision Decision, ttl time.Duration) error {
	return nil
}

// InvalidateDocument does nothing
func (c *NoOpDecisionCache) InvalidateDocument(ctx context.Context, documentID string) error {
	return nil
}

// Close does nothing
func (c *NoOpDecisionCache) Close() error {
	return nil
}
