package core

import "time"

// Environment variable names. Three-layer config precedence: defaults,
// then these env vars, then functional options (see config.go).
const (
	EnvRedisURL    = "FORGEMIND_REDIS_URL"
	EnvPostgresDSN = "FORGEMIND_POSTGRES_DSN"
	EnvDevMode     = "FORGEMIND_DEV_MODE"
	EnvLogFormat   = "FORGEMIND_LOG_FORMAT" // "json" or "text"
)

// Redis DB allocation. Each tier gets its own logical DB so a flush of one
// never touches another, mirroring the teacher's service-discovery
// isolation convention applied to the cache tiers this core actually has.
const (
	RedisDBSemanticCache = 0 // exact-match tier of the two-tier semantic cache
	RedisDBToolCache     = 1 // resilience.ToolCache results
	RedisDBReserved2     = 2
)

// GetRedisDBName returns a human-readable label for a Redis DB index, for
// logging and health-check output.
func GetRedisDBName(db int) string {
	switch db {
	case RedisDBSemanticCache:
		return "semantic-cache"
	case RedisDBToolCache:
		return "tool-cache"
	default:
		return "reserved"
	}
}

// Redis key prefixes and cache defaults.
const (
	// SemanticCacheKeyPrefix namespaces tier-1 exact-match cache entries.
	// Format: <prefix><hex sha256(prompt)>; the prompt is hashed as given,
	// without normalization.
	SemanticCacheKeyPrefix = "forgemind:semcache:"

	// ToolCacheKeyPrefix namespaces resilience.ToolCache entries.
	// Format: <prefix><tool name>:<first 16 hex chars of sha256(canonical JSON params)>
	ToolCacheKeyPrefix = "forgemind:toolcache:"

	// DefaultSemanticCacheTTL bounds how long a cached prompt/response pair
	// is considered fresh before it's treated as a miss.
	DefaultSemanticCacheTTL = 1 * time.Hour

	// DefaultToolCacheTTL bounds how long a cached tool result is reused.
	DefaultToolCacheTTL = 10 * time.Minute
)

// Deployment defaults for the request pipeline, overridable via Config.
const (
	// DefaultEmbeddingDimension is D, the fixed vector length every
	// embedding provider and the vector store must agree on.
	DefaultEmbeddingDimension = 1536

	// DefaultCacheSimilarityThreshold is the minimum cosine similarity for
	// a tier-2 semantic cache lookup to count as a hit.
	DefaultCacheSimilarityThreshold = 0.95

	// DefaultMaxWorkflowIterations bounds the supervisor/search/codegen
	// cyclic graph so a misbehaving loop cannot run forever.
	DefaultMaxWorkflowIterations = 5

	// DefaultMaxCodeGenRetries bounds the code-gen feedback-retry loop.
	DefaultMaxCodeGenRetries = 2
)
