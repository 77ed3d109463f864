package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/config"
	"github.com/moroccoguide/guide/internal/database"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/memory"
	"github.com/moroccoguide/guide/internal/providers/openai"
	iredis "github.com/moroccoguide/guide/internal/redis"
	"github.com/moroccoguide/guide/internal/retrieval"
	"github.com/moroccoguide/guide/internal/vectorstore/pgvector"
	"github.com/moroccoguide/guide/internal/vectorstore/weaviate"
)

func newMemoryStore(cfg config.MemoryConfig, client redis.Cmdable) (memory.Store, func()) {
	if cfg.Backend == config.MemoryBackendRedis {
		slog.Info("session memory backend", "backend", cfg.Backend, "max_entries", cfg.MaxEntries, "ttl", cfg.TTL)
		return memory.NewRedisStore(client, cfg.MaxEntries, cfg.TTL), func() {}
	}

	slog.Info("session memory backend", "backend", config.MemoryBackendInProcess, "max_entries", cfg.MaxEntries)
	store := memory.NewInProcessStore(cfg.MaxEntries)
	return store, store.Close
}

func newSearcher(cfg config.VectorConfig, pool *pgxpool.Pool) (retrieval.Searcher, error) {
	switch cfg.Backend {
	case config.VectorBackendWeaviate:
		s, err := weaviate.NewSearcher(weaviate.Config{
			Host:      cfg.WeaviateHost,
			Scheme:    cfg.WeaviateScheme,
			ClassName: cfg.WeaviateClass,
		})
		if err != nil {
			return nil, fmt.Errorf("creating weaviate searcher: %w", err)
		}
		slog.Info("vector backend", "backend", cfg.Backend, "host", cfg.WeaviateHost, "class", cfg.WeaviateClass)
		return s, nil
	case config.VectorBackendPgvector, "":
		slog.Info("vector backend", "backend", config.VectorBackendPgvector, "table", cfg.Table)
		return pgvector.NewSearcher(pool, cfg.Table), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

func newEmbedder(cfg config.EmbeddingConfig) *openai.Embedder {
	return openai.NewEmbedder(openai.ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, cfg.Dimensions)
}

func newCompleter(cfg config.LLMConfig) *openai.Completer {
	return openai.NewCompleter(openai.ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, cfg.Temperature, cfg.MaxTokens)
}

func healthChecks(pool *pgxpool.Pool, client redis.Cmdable, natsClient *events.Client) []api.HealthCheck {
	checks := []api.HealthCheck{
		{Name: "database", Check: database.HealthCheck(pool)},
		{Name: "redis", Check: iredis.HealthCheck(client)},
		{Name: "nats", Optional: true},
	}
	if natsClient != nil {
		checks[2].Check = natsClient.HealthCheck
	}
	return checks
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler).With("service", "guide-api"))
}
