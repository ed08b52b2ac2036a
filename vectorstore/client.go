// Package vectorstore implements the vector store client contract from
// spec.md §4.3: a pgvector-backed connection pool exposing documentation
// similarity search, cache similarity search, and cache upserts, all
// wrapped by the resilience circuit breaker and retry presets.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/resilience"
)

// Config configures the connection pool for a Client. The circuit breaker
// always uses resilience.DefaultCircuitBreakerConfig.
type Config struct {
	DSN         string
	MinPoolSize int32
	MaxPoolSize int32
}

// Client is a pgvector-backed vector store. It holds a single connection
// pool under a single circuit breaker, per spec.md §4.3.
type Client struct {
	pool    *pgxpool.Pool
	dsn     string
	cb      *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	logger  core.Logger
}

// HealthReport is the result of Client.Health.
type HealthReport struct {
	PoolSize           int32
	IdleConns          int32
	ExtensionAvailable bool
}

// NewClient opens a connection pool against dsn, sized [minPool, maxPool],
// and verifies the pgvector extension is loaded.
func NewClient(ctx context.Context, cfg Config, logger core.Logger) (*Client, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg.DSN == "" {
		return nil, core.NewFrameworkError("vectorstore.NewClient", "missing_configuration", core.ErrMissingConfiguration)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		pool:   pool,
		dsn:    cfg.DSN,
		cb:     resilience.NewCircuitBreaker("vectorstore", resilience.DefaultCircuitBreakerConfig(), logger),
		retry:  resilience.DatabaseRetryPolicy(),
		logger: core.WithComponent(logger, "vectorstore"),
	}

	if err := c.ensureExtension(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return c, nil
}

func openPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, core.NewFrameworkError("vectorstore.NewClient", "invalid_configuration",
			fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err))
	}
	if cfg.MinPoolSize > 0 {
		poolCfg.MinConns = cfg.MinPoolSize
	} else {
		poolCfg.MinConns = 2
	}
	if cfg.MaxPoolSize > 0 {
		poolCfg.MaxConns = cfg.MaxPoolSize
	} else {
		poolCfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.NewFrameworkError("vectorstore.NewClient", "connection_lost",
			fmt.Errorf("%w: %v", core.ErrConnectionLost, err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, core.NewFrameworkError("vectorstore.NewClient", "connection_lost",
			fmt.Errorf("%w: %v", core.ErrConnectionLost, err))
	}
	return pool, nil
}

func (c *Client) ensureExtension(ctx context.Context) error {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&exists)
	if err != nil {
		return core.NewFrameworkError("vectorstore.ensureExtension", "vector_store_unavailable",
			fmt.Errorf("%w: %v", core.ErrVectorStoreUnavailable, err))
	}
	if !exists {
		return core.NewFrameworkError("vectorstore.ensureExtension", "vector_store_unavailable",
			fmt.Errorf("%w: pgvector extension not loaded", core.ErrVectorStoreUnavailable))
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Health reports pool size, idle count, and extension availability.
func (c *Client) Health(ctx context.Context) HealthReport {
	stat := c.pool.Stat()
	report := HealthReport{
		PoolSize:  stat.TotalConns(),
		IdleConns: stat.IdleConns(),
	}
	report.ExtensionAvailable = c.ensureExtension(ctx) == nil
	return report
}

// withResilience wraps fn with the database retry preset and the store's
// circuit breaker, performing one forced reconnect if fn reports a
// connection-lost error before the retry loop gives up.
func (c *Client) withResilience(ctx context.Context, fn func(ctx context.Context) error) error {
	reconnected := false
	wrapped := func() error {
		err := fn(ctx)
		if err != nil && errors.Is(err, core.ErrConnectionLost) && !reconnected {
			reconnected = true
			if reErr := c.reconnect(ctx); reErr != nil {
				c.logger.Warn("vectorstore reconnect failed", map[string]interface{}{"error": reErr.Error()})
			}
		}
		return err
	}
	return resilience.RetryWithCircuitBreaker(ctx, c.retry, c.cb, wrapped)
}

func (c *Client) reconnect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.pool.Ping(pingCtx)
}

func toPgvector(e core.Embedding) pgvector.Vector {
	return pgvector.NewVector(e)
}

// SearchDocumentation runs a cosine-similarity search over the
// documentation store, filters by score and framework, and truncates
// to topK.
func (c *Client) SearchDocumentation(ctx context.Context, queryEmbedding core.Embedding, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, core.NewFrameworkError("vectorstore.SearchDocumentation", "invalid_input", core.ErrInvalidInput)
	}

	var results []core.DocumentationResult
	err := c.withResilience(ctx, func(ctx context.Context) error {
		query := `
			SELECT content, source, framework, 1 - (embedding <=> $1) AS score, section, version
			FROM framework_documentation
			WHERE ($2::text[] IS NULL OR framework = ANY($2))
			ORDER BY embedding <=> $1
			LIMIT $3`

		var frameworkFilter interface{}
		if len(frameworks) > 0 {
			frameworkFilter = frameworks
		}

		rows, err := c.pool.Query(ctx, query, toPgvector(queryEmbedding), frameworkFilter, topK)
		if err != nil {
			return classifyPgError(err)
		}
		defer rows.Close()

		collected := make([]core.DocumentationResult, 0, topK)
		for rows.Next() {
			var r core.DocumentationResult
			var section, version string
			if err := rows.Scan(&r.Content, &r.Source, &r.Framework, &r.Score, &section, &version); err != nil {
				return classifyPgError(err)
			}
			if r.Score < minScore {
				continue
			}
			collected = append(collected, r)
		}
		if err := rows.Err(); err != nil {
			return classifyPgError(err)
		}
		results = collected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchCacheByEmbedding finds the single best cache match whose
// similarity is >= threshold, or reports found=false on a clean miss.
func (c *Client) SearchCacheByEmbedding(ctx context.Context, embedding core.Embedding, threshold float64) (entry core.CachedResponse, similarity float64, found bool, err error) {
	if len(embedding) == 0 {
		return core.CachedResponse{}, 0, false, core.NewFrameworkError("vectorstore.SearchCacheByEmbedding", "invalid_input", core.ErrInvalidInput)
	}

	err = c.withResilience(ctx, func(ctx context.Context) error {
		query := `
			SELECT prompt, response, ttl, 1 - (embedding <=> $1) AS score
			FROM semantic_cache
			ORDER BY embedding <=> $1
			LIMIT 1`

		row := c.pool.QueryRow(ctx, query, toPgvector(embedding))
		var r core.CachedResponse
		var score float64
		scanErr := row.Scan(&r.Prompt, &r.Response, &r.TTLSeconds, &score)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if scanErr != nil {
			return classifyPgError(scanErr)
		}
		if score < threshold {
			found = false
			return nil
		}
		entry = r
		similarity = score
		found = true
		return nil
	})
	if err != nil {
		return core.CachedResponse{}, 0, false, err
	}
	return entry, similarity, found, nil
}

// UpsertCache inserts or replaces a cache row keyed by prompt.
func (c *Client) UpsertCache(ctx context.Context, prompt, response string, embedding core.Embedding, ttl time.Duration) error {
	if len(embedding) == 0 {
		return core.NewFrameworkError("vectorstore.UpsertCache", "invalid_input", core.ErrInvalidInput)
	}

	return c.withResilience(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO semantic_cache (prompt, response, embedding, cached_at, ttl)
			VALUES ($1, $2, $3, now(), $4)
			ON CONFLICT (prompt) DO UPDATE SET
				response = EXCLUDED.response,
				embedding = EXCLUDED.embedding,
				cached_at = EXCLUDED.cached_at,
				ttl = EXCLUDED.ttl`
		_, err := c.pool.Exec(ctx, query, prompt, response, toPgvector(embedding), int(ttl.Seconds()))
		if err != nil {
			return classifyPgError(err)
		}
		return nil
	})
}

// TruncateCache removes every row from the cache table.
func (c *Client) TruncateCache(ctx context.Context) error {
	return c.withResilience(ctx, func(ctx context.Context) error {
		_, err := c.pool.Exec(ctx, `TRUNCATE semantic_cache`)
		if err != nil {
			return classifyPgError(err)
		}
		return nil
	})
}

func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return core.NewFrameworkError("vectorstore", "vector_store_unavailable", fmt.Errorf("%w: %v", core.ErrVectorStoreUnavailable, err))
	}
	return core.NewFrameworkError("vectorstore", "connection_lost", fmt.Errorf("%w: %v", core.ErrConnectionLost, err))
}
