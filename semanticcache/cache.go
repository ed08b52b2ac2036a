// Package semanticcache implements the two-tier semantic cache from
// spec.md §4.5: an exact-match tier on Redis (K) in front of a
// similarity-match tier on the vector store (V). Every operation degrades
// gracefully - a backend failure is logged and treated as a miss/no-store,
// never propagated to the caller, matching the teacher's
// orchestration/cache.go RoutingCache contract adapted from routing-plan
// caching to prompt/response caching.
package semanticcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/forgemind/forgemind/core"
)

// KVStore is the exact-match tier (K): string keys with TTL, scoped to this
// cache's own namespace so Clear never touches another tier's keys.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// VectorSearcher is the similarity-match tier (V).
type VectorSearcher interface {
	SearchCacheByEmbedding(ctx context.Context, embedding core.Embedding, threshold float64) (core.CachedResponse, float64, bool, error)
	UpsertCache(ctx context.Context, prompt, response string, embedding core.Embedding, ttl time.Duration) error
	TruncateCache(ctx context.Context) error
}

// Entry is a cache lookup result with the similarity score it was found at.
// SimilarityScore is exactly 1.0 for a tier-1 (exact) hit, per spec.md §3.
type Entry struct {
	Response        string
	SimilarityScore float64
}

// Cache is the two-tier semantic cache. It never changes the correctness of
// a request's result, only its latency (spec.md §4.5 Glossary).
type Cache struct {
	kv     KVStore
	vector VectorSearcher
	logger core.Logger
}

// New wires the two tiers behind the Cache contract.
func New(kv KVStore, vector VectorSearcher, logger core.Logger) *Cache {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Cache{kv: kv, vector: vector, logger: core.WithComponent(logger, "semanticcache")}
}

// ExactKey returns the tier-1 key for prompt: the hex sha256 of prompt, with
// no prefix of its own. The KV store's namespace supplies any prefix; for
// the Redis tier that is core.SemanticCacheKeyPrefix ("forgemind:semcache:"),
// not "semantic_cache:".
func ExactKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Get tries the exact-match tier first, then the similarity tier. Any
// backend error degrades to a clean miss (found=false) - it is never
// surfaced to the caller (spec.md §7 CacheBackendError).
//
// The open question from spec.md §9 is preserved literally: when embedding
// is nil/empty, Get falls through to "miss" unconditionally once the exact
// tier misses, rather than deriving an embedding internally. This matches
// the source's behavior; whether that is the intended contract or an
// oversight is unresolved (see DESIGN.md).
func (c *Cache) Get(ctx context.Context, prompt string, embedding core.Embedding, threshold float64) (Entry, bool) {
	if exact, ok := c.getExact(ctx, prompt); ok {
		return exact, true
	}

	if len(embedding) == 0 {
		return Entry{}, false
	}

	cached, similarity, found, err := c.vector.SearchCacheByEmbedding(ctx, embedding, threshold)
	if err != nil {
		c.logger.Warn("semantic cache tier-2 lookup failed, degrading to miss", map[string]interface{}{"error": err.Error()})
		return Entry{}, false
	}
	if !found || similarity < threshold {
		return Entry{}, false
	}
	return Entry{Response: cached.Response, SimilarityScore: similarity}, true
}

func (c *Cache) getExact(ctx context.Context, prompt string) (Entry, bool) {
	val, err := c.kv.Get(ctx, ExactKey(prompt))
	if err != nil {
		c.logger.Debug("semantic cache tier-1 miss", map[string]interface{}{"error": err.Error()})
		return Entry{}, false
	}
	return Entry{Response: val, SimilarityScore: 1.0}, true
}

// Set writes the (prompt, response, embedding) triple to both tiers.
// Partial failure is tolerated: one backend succeeding is acceptable. Both
// failing is logged and returns false; never raises.
func (c *Cache) Set(ctx context.Context, prompt, response string, embedding core.Embedding, ttl time.Duration) bool {
	kvOK := true
	if err := c.kv.Set(ctx, ExactKey(prompt), response, ttl); err != nil {
		kvOK = false
		c.logger.Warn("semantic cache tier-1 write failed", map[string]interface{}{"error": err.Error()})
	}

	vectorOK := true
	if len(embedding) == 0 {
		vectorOK = false
	} else if err := c.vector.UpsertCache(ctx, prompt, response, embedding, ttl); err != nil {
		vectorOK = false
		c.logger.Warn("semantic cache tier-2 write failed", map[string]interface{}{"error": err.Error()})
	}

	if !kvOK && !vectorOK {
		c.logger.Error("semantic cache write failed on both tiers", map[string]interface{}{"prompt_hash": ExactKey(prompt)})
		return false
	}
	return true
}

// Clear removes every tier-1 entry in this cache's namespace and truncates
// the tier-2 cache table. Degrades gracefully like every other operation.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.kv.DeleteByPrefix(ctx, ""); err != nil {
		c.logger.Warn("semantic cache tier-1 clear failed", map[string]interface{}{"error": err.Error()})
	}
	if err := c.vector.TruncateCache(ctx); err != nil {
		c.logger.Warn("semantic cache tier-2 clear failed", map[string]interface{}{"error": err.Error()})
	}
}
