// Command forgemindd wires Services from a core.Config and runs one
// request end to end. It is deliberately thin: no HTTP server, no auth -
// those are out of scope for this core (see spec.md §5 Non-goals). A
// production deployment puts a real transport in front of forgemind.Process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/forgemind/forgemind/agents/codegen"
	"github.com/forgemind/forgemind/agents/docsearch"
	"github.com/forgemind/forgemind/agents/supervisor"
	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/embedding"
	"github.com/forgemind/forgemind/forgemind"
	openaiclient "github.com/forgemind/forgemind/llm/openai"
	"github.com/forgemind/forgemind/rerank"
	"github.com/forgemind/forgemind/resilience"
	"github.com/forgemind/forgemind/semanticcache"
	"github.com/forgemind/forgemind/vectorstore"
	"github.com/forgemind/forgemind/workflow"
)

func main() {
	prompt := flag.String("prompt", "", "request prompt to process")
	framework := flag.String("framework", "", "target framework, if known")
	flag.Parse()

	if *prompt == "" {
		log.Fatal("forgemindd: -prompt is required")
	}

	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("forgemindd: loading configuration: %v", err)
	}
	logger := core.NewProductionLogger(cfg.Logging, cfg.Dev, cfg.ServiceName)

	services, err := buildServices(cfg, logger)
	if err != nil {
		log.Fatalf("forgemindd: wiring services: %v", err)
	}

	resp, err := services.Process(context.Background(), forgemind.Request{
		Prompt:    *prompt,
		Framework: *framework,
	})
	if err != nil {
		log.Fatalf("forgemindd: processing request: %v", err)
	}

	fmt.Printf("trace_id=%s cache_hit=%v tokens_used=%d agents=%v iterations=%d\n",
		resp.Metadata.TraceID, resp.Metadata.CacheHit, resp.Metadata.TokensUsed,
		resp.Metadata.AgentsInvoked, resp.Metadata.WorkflowIterations)
	fmt.Println(resp.Result)
}

func buildServices(cfg *core.Config, logger core.Logger) (*forgemind.Services, error) {
	semCacheRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Redis.URL,
		DB:        core.RedisDBSemanticCache,
		Namespace: core.SemanticCacheKeyPrefix,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	toolCacheRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Redis.URL,
		DB:        core.RedisDBToolCache,
		Namespace: core.ToolCacheKeyPrefix,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	toolCache := resilience.NewRedisToolCache(toolCacheRedis, logger)

	vsClient, err := vectorstore.NewClient(context.Background(), vectorstore.Config{
		DSN:         cfg.Postgres.DSN,
		MinPoolSize: int32(cfg.Postgres.MinPoolSize),
		MaxPoolSize: int32(cfg.Postgres.MaxPoolSize),
	}, logger)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Provider
	if cfg.Embedding.Provider == "local" {
		embedder = embedding.NewLocalProvider(cfg.Embedding.Dimension)
	} else {
		embedder = embedding.NewRemoteProvider(os.Getenv("OPENAI_API_KEY"), goopenai.EmbeddingModel(cfg.Embedding.Model), cfg.Embedding.Dimension, logger)
	}

	chatClient := openaiclient.NewClient(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini", logger)

	reranker := rerank.New(rerank.NewHeuristicScorer(), logger)
	cache := semanticcache.New(semCacheRedis, vsClient, logger)

	supervisorAgent := supervisor.New(chatClient, logger)
	docSearchAgent := docsearch.New(embedder, vsClient, reranker, toolCache, logger)
	codeGenAgent := codegen.New(chatClient, logger)

	engine := workflow.NewEngine(supervisorAgent, docSearchAgent, codeGenAgent, logger)

	services, err := forgemind.NewServices(cache, embedder, engine, cfg, logger)
	if err != nil {
		return nil, err
	}
	return services.WithTelemetry(core.NewOtelTelemetry(cfg.ServiceName, otel.GetMeterProvider())), nil
}
