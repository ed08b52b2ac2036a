package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forgemind/forgemind/core"
)

// ToolCache is a key-value store with TTL for tool invocation results. Every
// operation MUST degrade gracefully: a backend failure is logged and treated
// as a cache-miss / no-store, never propagated to the caller (spec.md §4.1).
type ToolCache interface {
	Get(ctx context.Context, toolName string, params map[string]interface{}) (string, bool)
	Set(ctx context.Context, toolName string, params map[string]interface{}, result string, ttl time.Duration)
	Delete(ctx context.Context, toolName string, params map[string]interface{})
	// GetOrSet looks up the entry; on miss it calls fetch and stores the
	// result best-effort before returning it. Cache read/write failures are
	// treated as miss/no-store, but an error from fetch itself is returned
	// to the caller and nothing is stored.
	GetOrSet(ctx context.Context, toolName string, params map[string]interface{}, ttl time.Duration, fetch func() (string, error)) (string, error)
}

// ToolCacheKey builds the canonical key
// core.ToolCacheKeyPrefix + {tool_name}:{sha256(params)[:16]}, i.e.
// "forgemind:toolcache:{tool_name}:{hash}"; it does not use a bare
// "tool_cache:" prefix. RedisToolCache passes this key to its RedisClient,
// which prepends the client's own namespace on top.
// Map key ordering never affects the key: params are sorted before hashing.
func ToolCacheKey(toolName string, params map[string]interface{}) string {
	canonical := canonicalizeParams(params)
	sum := sha256.Sum256([]byte(canonical))
	return core.ToolCacheKeyPrefix + toolName + ":" + hex.EncodeToString(sum[:])[:16]
}

func canonicalizeParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, params[k])
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		// Marshal failure on plain param maps should not happen; fall back
		// to a stable string form so the cache degrades instead of panicking.
		return fmt.Sprintf("%v", ordered)
	}
	return string(data)
}

// RedisToolCache is the production ToolCache, backed by the tool-cache Redis
// DB. Every method swallows backend errors into a miss/no-store outcome.
type RedisToolCache struct {
	client *core.RedisClient
	logger core.Logger
}

// NewRedisToolCache builds a ToolCache over an already-connected RedisClient.
func NewRedisToolCache(client *core.RedisClient, logger core.Logger) *RedisToolCache {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisToolCache{client: client, logger: logger}
}

func (c *RedisToolCache) Get(ctx context.Context, toolName string, params map[string]interface{}) (string, bool) {
	key := ToolCacheKey(toolName, params)
	val, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Debug("tool cache miss", map[string]interface{}{"tool": toolName, "error": err})
		return "", false
	}
	return val, true
}

func (c *RedisToolCache) Set(ctx context.Context, toolName string, params map[string]interface{}, result string, ttl time.Duration) {
	key := ToolCacheKey(toolName, params)
	if err := c.client.Set(ctx, key, result, ttl); err != nil {
		c.logger.Warn("tool cache store failed, degrading to no-store", map[string]interface{}{
			"tool": toolName, "error": err,
		})
	}
}

func (c *RedisToolCache) Delete(ctx context.Context, toolName string, params map[string]interface{}) {
	key := ToolCacheKey(toolName, params)
	if err := c.client.Del(ctx, key); err != nil {
		c.logger.Debug("tool cache delete failed", map[string]interface{}{"tool": toolName, "error": err})
	}
}

func (c *RedisToolCache) GetOrSet(ctx context.Context, toolName string, params map[string]interface{}, ttl time.Duration, fetch func() (string, error)) (string, error) {
	if val, ok := c.Get(ctx, toolName, params); ok {
		return val, nil
	}
	result, err := fetch()
	if err != nil {
		return "", err
	}
	c.Set(ctx, toolName, params, result, ttl)
	return result, nil
}

// InMemoryToolCache is a process-local ToolCache used in tests and as a
// fallback when Redis is unavailable. Entries are independent; no cross-key
// consistency is required (spec.md §5).
type InMemoryToolCache struct {
	mu      sync.Mutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewInMemoryToolCache builds an empty in-memory ToolCache.
func NewInMemoryToolCache() *InMemoryToolCache {
	return &InMemoryToolCache{entries: make(map[string]inMemoryEntry)}
}

func (c *InMemoryToolCache) Get(ctx context.Context, toolName string, params map[string]interface{}) (string, bool) {
	key := ToolCacheKey(toolName, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *InMemoryToolCache) Set(ctx context.Context, toolName string, params map[string]interface{}, result string, ttl time.Duration) {
	key := ToolCacheKey(toolName, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = inMemoryEntry{value: result, expiresAt: time.Now().Add(ttl)}
}

func (c *InMemoryToolCache) Delete(ctx context.Context, toolName string, params map[string]interface{}) {
	key := ToolCacheKey(toolName, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *InMemoryToolCache) GetOrSet(ctx context.Context, toolName string, params map[string]interface{}, ttl time.Duration, fetch func() (string, error)) (string, error) {
	if val, ok := c.Get(ctx, toolName, params); ok {
		return val, nil
	}
	result, err := fetch()
	if err != nil {
		return "", err
	}
	c.Set(ctx, toolName, params, result, ttl)
	return result, nil
}
