// Package core provides Redis client abstractions shared by the semantic
// cache and tool cache tiers.
//
// Purpose:
// - Provides unified Redis access across the two cache tiers
// - Implements database isolation so a flush of one tier never touches another
// - Supports key namespacing to prevent collisions
// - Offers a simplified API for the operations each tier actually needs
// - Manages connection lifecycle and error handling
//
// Database Allocation:
// See constants.go for RedisDBSemanticCache / RedisDBToolCache.
//
// Namespacing:
// All keys are automatically prefixed with the namespace, e.g.
// "forgemind:semcache:<hash>" or "forgemind:toolcache:<hash>".
//
// Usage:
//
//	client, err := NewRedisClient(RedisClientOptions{
//	    RedisURL:  "redis://localhost:6379",
//	    DB:        RedisDBToolCache,
//	    Namespace: ToolCacheKeyPrefix,
//	})
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient provides a simplified Redis interface for a cache tier with DB isolation.
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client.
type RedisClientOptions struct {
	RedisURL  string
	DB        int // Redis DB number for isolation (0-15)
	Namespace string
	Logger    Logger
}

// NewRedisClient creates a new Redis client with specified options.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.Logger != nil {
		opts.Logger.Debug("initializing redis client", map[string]interface{}{
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
		})
	}

	if opts.RedisURL == "" {
		if opts.Logger != nil {
			opts.Logger.Error("failed to initialize redis client", map[string]interface{}{
				"error": "redis URL is required",
			})
		}
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Error("failed to parse redis URL", map[string]interface{}{
				"error":     err,
				"redis_url": opts.RedisURL,
			})
		}
		return nil, fmt.Errorf("invalid redis URL: %w", ErrInvalidConfiguration)
	}

	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if opts.Logger != nil {
			opts.Logger.Error("failed to connect to redis", map[string]interface{}{
				"error":   err,
				"db":      opts.DB,
				"db_name": GetRedisDBName(opts.DB),
			})
		}
		return nil, fmt.Errorf("failed to connect to redis DB %d: %w", opts.DB, ErrConnectionLost)
	}

	rc := &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    opts.Logger,
	}

	if rc.logger != nil {
		rc.logger.Info("redis client connected", map[string]interface{}{
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
		})
	}

	return rc, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	if r.logger != nil {
		r.logger.Info("closing redis client connection", map[string]interface{}{
			"db": r.dbID,
		})
	}

	err := r.client.Close()
	if err != nil && r.logger != nil {
		r.logger.Error("failed to close redis client", map[string]interface{}{
			"error": err,
			"db":    r.dbID,
		})
	}

	return err
}

// GetDB returns the DB number being used.
func (r *RedisClient) GetDB() int {
	return r.dbID
}

// GetNamespace returns the namespace being used.
func (r *RedisClient) GetNamespace() string {
	return r.namespace
}

// formatKey formats a key with the namespace.
func (r *RedisClient) formatKey(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s%s", r.namespace, key)
	}
	return key
}

// Incr increments a counter.
func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, r.formatKey(key)).Result()
}

// Expire sets a TTL on a key.
func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, r.formatKey(key), ttl).Err()
}

// Get retrieves a value.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.formatKey(key)).Result()
}

// Set stores a value with optional TTL.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.formatKey(key), value, ttl).Err()
}

// Del deletes keys.
func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	formattedKeys := make([]string, len(keys))
	for i, key := range keys {
		formattedKeys[i] = r.formatKey(key)
	}
	return r.client.Del(ctx, formattedKeys...).Err()
}

// TTL gets the TTL of a key.
func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.formatKey(key)).Result()
}

// KeysWithPrefix scans the keyspace for keys starting with prefix (within
// this client's namespace/DB) and returns them with the namespace stripped
// back off, per spec.md §6's "keyspace-prefix scan (`keys prefix*`)"
// contract. Uses SCAN rather than KEYS so a large keyspace doesn't block
// the server.
func (r *RedisClient) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	match := r.formatKey(prefix) + "*"
	var matched []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, err
		}
		matched = append(matched, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	stripped := make([]string, len(matched))
	for i, k := range matched {
		stripped[i] = strings.TrimPrefix(k, r.namespace)
	}
	return stripped, nil
}

// DeleteByPrefix deletes every key in this client's namespace/DB starting
// with prefix, used by semanticcache.Clear to truncate tier-1 entries.
func (r *RedisClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	keys, err := r.KeysWithPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Del(ctx, keys...)
}

// HealthCheck verifies Redis connectivity.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil && r.logger != nil {
		r.logger.ErrorWithContext(ctx, "redis health check failed", map[string]interface{}{
			"error": err,
			"db":    r.dbID,
		})
	}
	return err
}
