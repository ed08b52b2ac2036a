package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// traceIDContextKey is the context key Process uses to thread a request's
// trace_id down into every log line emitted while handling it.
type traceIDContextKey struct{}

// ContextWithTraceID returns a context carrying traceID for logging.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(traceIDContextKey{}).(string)
	return v
}

// Config carries every deployment-time setting the pipeline needs: the
// embedding dimension every provider and the vector store must agree on,
// the cache similarity threshold, workflow bounds, resilience presets, and
// the Postgres/Redis connection strings. Loaded in three layers, in order:
// DefaultConfig(), then LoadFromFile()/LoadFromEnv(), then functional
// Options - each layer only overrides what it explicitly sets.
type Config struct {
	ServiceName string `yaml:"service_name" env:"FORGEMIND_SERVICE_NAME" default:"forgemind"`

	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Dev        DevelopmentConfig `yaml:"dev"`

	logger Logger
}

// EmbeddingConfig configures the embedding provider (C2).
type EmbeddingConfig struct {
	Dimension int           `yaml:"dimension" env:"FORGEMIND_EMBED_DIM" default:"1536"`
	Provider  string        `yaml:"provider" env:"FORGEMIND_EMBED_PROVIDER" default:"remote"`
	Model     string        `yaml:"model" env:"FORGEMIND_EMBED_MODEL" default:"text-embedding-3-small"`
	Timeout   time.Duration `yaml:"timeout" env:"FORGEMIND_EMBED_TIMEOUT" default:"10s"`
}

// CacheConfig configures the two-tier semantic cache (C5).
type CacheConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold" env:"FORGEMIND_CACHE_THRESHOLD" default:"0.95"`
	TTL                 time.Duration `yaml:"ttl" env:"FORGEMIND_CACHE_TTL" default:"1h"`
	ToolCacheTTL        time.Duration `yaml:"tool_cache_ttl" env:"FORGEMIND_TOOLCACHE_TTL" default:"10m"`
}

// WorkflowConfig bounds the cyclic supervisor/search/codegen graph (C10).
type WorkflowConfig struct {
	MaxIterations   int `yaml:"max_iterations" env:"FORGEMIND_MAX_ITERATIONS" default:"5"`
	MaxCodeGenRetry int `yaml:"max_codegen_retries" env:"FORGEMIND_MAX_CODEGEN_RETRIES" default:"2"`
}

// ResilienceConfig configures the circuit breaker and retry presets (C1).
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig is the literal threshold model from spec.md §4.1.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FORGEMIND_CB_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"FORGEMIND_CB_RECOVERY" default:"60s"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"FORGEMIND_CB_HALF_OPEN_CALLS" default:"1"`
}

// RetryConfig configures the exponential backoff wrapper shared by the LLM,
// database, and tool retry presets.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" env:"FORGEMIND_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialDelay  time.Duration `yaml:"initial_delay" env:"FORGEMIND_RETRY_INITIAL_DELAY" default:"200ms"`
	MaxDelay      time.Duration `yaml:"max_delay" env:"FORGEMIND_RETRY_MAX_DELAY" default:"5s"`
	BackoffFactor float64       `yaml:"backoff_factor" env:"FORGEMIND_RETRY_BACKOFF_FACTOR" default:"2.0"`
}

// PostgresConfig is the vector store connection (C3).
type PostgresConfig struct {
	DSN         string `yaml:"dsn" env:"FORGEMIND_POSTGRES_DSN"`
	MinPoolSize int    `yaml:"min_pool_size" env:"FORGEMIND_POSTGRES_MIN_POOL" default:"2"`
	MaxPoolSize int    `yaml:"max_pool_size" env:"FORGEMIND_POSTGRES_MAX_POOL" default:"10"`
}

// RedisConfig backs the semantic cache tier 1 and the tool cache.
type RedisConfig struct {
	URL string `yaml:"url" env:"FORGEMIND_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
}

// LoggingConfig controls the structured logger's output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"FORGEMIND_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"FORGEMIND_LOG_FORMAT" default:"json"`
	Output string `yaml:"output" env:"FORGEMIND_LOG_OUTPUT" default:"stdout"`
}

// DevelopmentConfig toggles behavior useful only outside production.
type DevelopmentConfig struct {
	Enabled      bool `yaml:"enabled" env:"FORGEMIND_DEV_MODE" default:"false"`
	DebugLogging bool `yaml:"debug_logging" env:"FORGEMIND_DEBUG" default:"false"`
}

// Option mutates a Config during construction; applied after defaults and
// env/file loading so callers always win.
type Option func(*Config) error

// WithLogger attaches a logger used while loading configuration itself.
func WithLogger(l Logger) Option {
	return func(c *Config) error {
		c.logger = l
		return nil
	}
}

// WithEmbeddingDimension overrides the configured embedding dimension D.
func WithEmbeddingDimension(d int) Option {
	return func(c *Config) error {
		c.Embedding.Dimension = d
		return nil
	}
}

// WithRedisURL overrides the Redis connection string.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		return nil
	}
}

// WithPostgresDSN overrides the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(c *Config) error {
		c.Postgres.DSN = dsn
		return nil
	}
}

// NewConfig builds a Config from defaults, then the environment, then the
// supplied options, validating the result before returning it.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, NewFrameworkError("core.NewConfig", "configuration", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("core.NewConfig", "configuration", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a Config with every field at its documented default.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "forgemind",
		Embedding: EmbeddingConfig{
			Dimension: DefaultEmbeddingDimension,
			Provider:  "remote",
			Model:     "text-embedding-3-small",
			Timeout:   10 * time.Second,
		},
		Cache: CacheConfig{
			SimilarityThreshold: DefaultCacheSimilarityThreshold,
			TTL:                 DefaultSemanticCacheTTL,
			ToolCacheTTL:        DefaultToolCacheTTL,
		},
		Workflow: WorkflowConfig{
			MaxIterations:   DefaultMaxWorkflowIterations,
			MaxCodeGenRetry: DefaultMaxCodeGenRetries,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  60 * time.Second,
				HalfOpenMaxCalls: 1,
			},
			Retry: RetryConfig{
				MaxAttempts:   3,
				InitialDelay:  200 * time.Millisecond,
				MaxDelay:      5 * time.Second,
				BackoffFactor: 2.0,
			},
		},
		Postgres: PostgresConfig{
			MinPoolSize: 2,
			MaxPoolSize: 10,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromFile reads YAML configuration from path and merges it over the
// current values. Missing fields in the file keep whatever the Config
// already holds (DefaultConfig, normally).
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewFrameworkError("core.Config.LoadFromFile", "configuration", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewFrameworkError("core.Config.LoadFromFile", "configuration", err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto c. Each setting is read
// independently so a malformed value for one field doesn't block the rest.
// Only the variables read below are applied; FORGEMIND_EMBED_TIMEOUT,
// FORGEMIND_TOOLCACHE_TTL, FORGEMIND_CB_HALF_OPEN_CALLS, the
// FORGEMIND_RETRY_* variables, FORGEMIND_POSTGRES_MIN_POOL,
// FORGEMIND_POSTGRES_MAX_POOL and FORGEMIND_LOG_OUTPUT appear in the
// struct tags but are not read here.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FORGEMIND_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("FORGEMIND_EMBED_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimension = n
		} else if c.logger != nil {
			c.logger.Warn("invalid FORGEMIND_EMBED_DIM", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("FORGEMIND_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("FORGEMIND_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("FORGEMIND_CACHE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("FORGEMIND_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("FORGEMIND_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workflow.MaxIterations = n
		}
	}
	if v := os.Getenv("FORGEMIND_MAX_CODEGEN_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workflow.MaxCodeGenRetry = n
		}
	}
	if v := os.Getenv("FORGEMIND_CB_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.CircuitBreaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("FORGEMIND_CB_RECOVERY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.CircuitBreaker.RecoveryTimeout = d
		}
	}
	if v := os.Getenv("FORGEMIND_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("FORGEMIND_REDIS_URL"); v != "" {
		c.Redis.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("FORGEMIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FORGEMIND_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FORGEMIND_DEV_MODE"); v != "" {
		c.Dev.Enabled = parseBool(v)
	}
	if v := os.Getenv("FORGEMIND_DEBUG"); v != "" {
		c.Dev.DebugLogging = parseBool(v)
	}

	return nil
}

// Validate checks invariants that must hold before Config is used to
// construct any collaborator.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return NewFrameworkError("core.Config.Validate", "configuration",
			fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfiguration))
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return NewFrameworkError("core.Config.Validate", "configuration",
			fmt.Errorf("%w: cache similarity threshold must be in (0, 1]", ErrInvalidConfiguration))
	}
	if c.Workflow.MaxIterations <= 0 {
		return NewFrameworkError("core.Config.Validate", "configuration",
			fmt.Errorf("%w: workflow max iterations must be positive", ErrInvalidConfiguration))
	}
	if c.Postgres.MinPoolSize <= 0 || c.Postgres.MaxPoolSize < c.Postgres.MinPoolSize {
		return NewFrameworkError("core.Config.Validate", "configuration",
			fmt.Errorf("%w: postgres pool sizes invalid", ErrInvalidConfiguration))
	}
	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// ============================================================================
// ProductionLogger - structured, component-aware logging
// ============================================================================

// ProductionLogger is the default Logger/ComponentAwareLogger implementation.
// It writes JSON lines in production and a human-readable line in dev mode,
// matching the format switch the teacher's config-driven logger uses.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer
}

// NewProductionLogger builds a root logger from LoggingConfig/DevelopmentConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

// WithComponent returns a logger that tags every line with component,
// leaving the sink and level untouched. Satisfies ComponentAwareLogger.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = "forgemind"
	}

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		if traceID := traceIDFromContext(ctx); traceID != "" {
			logEntry["trace_id"] = traceID
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	traceInfo := ""
	if traceID := traceIDFromContext(ctx); traceID != "" {
		traceInfo = fmt.Sprintf("[trace=%s] ", traceID)
	}

	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}

	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
		timestamp, level, p.serviceName, component, traceInfo, msg, fieldStr.String())
}
