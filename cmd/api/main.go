package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/audit"
	"github.com/moroccoguide/guide/internal/auth"
	"github.com/moroccoguide/guide/internal/chat"
	"github.com/moroccoguide/guide/internal/config"
	"github.com/moroccoguide/guide/internal/conversations"
	"github.com/moroccoguide/guide/internal/crypto"
	"github.com/moroccoguide/guide/internal/database"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/generation"
	"github.com/moroccoguide/guide/internal/middleware"
	"github.com/moroccoguide/guide/internal/pipeline"
	"github.com/moroccoguide/guide/internal/quota"
	iredis "github.com/moroccoguide/guide/internal/redis"
	"github.com/moroccoguide/guide/internal/retrieval"
	"github.com/moroccoguide/guide/internal/server"
	"github.com/moroccoguide/guide/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("guide api exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if !cfg.Migrations.Disable {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.Migrations.Path); err != nil {
			return err
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	// Events are optional; without NATS they are dropped.
	var (
		sink       events.Sink = events.Nop{}
		natsClient *events.Client
	)
	if cfg.NATS.URL != "" {
		natsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsClient.Close()
		sink = events.NewPublisher(natsClient.JetStream())
	}

	router, closeApp, err := newApp(cfg, pool, redisClient, sink, natsClient)
	if err != nil {
		return err
	}
	defer closeApp()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(cfg.Server, router).Run(gctx)
	})

	if natsClient != nil {
		consumer := audit.NewConsumer(audit.NewRepository(pool), natsClient)
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newApp builds every service and handler on top of the shared connections.
func newApp(
	cfg *config.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	sink events.Sink,
	natsClient *events.Client,
) (router http.Handler, closeFn func(), err error) {
	// Conversation pipeline
	store, closeStore := newMemoryStore(cfg.Memory, redisClient)

	searcher, err := newSearcher(cfg.Vector, pool)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	retriever := retrieval.NewRetriever(
		newEmbedder(cfg.Embedding),
		searcher,
		retrieval.WithTimeouts(cfg.Pipeline.EmbeddingTimeout, cfg.Pipeline.RetrievalTimeout),
	)
	generator := generation.NewGenerator(newCompleter(cfg.LLM), cfg.Pipeline.GenerationTimeout)
	conv := pipeline.New(store, retriever, generator)

	// Accounts
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authSvc, userSvc, sink)

	// Governance
	quotaSvc := quota.NewService(quota.NewRepository(pool), quota.NewLimiter(redisClient), cfg.Governance)
	auditRepo := audit.NewRepository(pool)

	sealer, err := crypto.NewSealer(cfg.Encryption.Key)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	convSvc := conversations.NewService(conversations.NewRepository(pool), sealer)

	chatHandler := chat.NewHandler(conv, quotaSvc, sink)
	convHandler := conversations.NewHandler(convSvc, sink)
	quotaHandler := quota.NewHandler(quotaSvc)
	auditHandler := audit.NewHandler(auditRepo)

	authLimiter := middleware.NewRateLimiter(redisClient, "auth", cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)

	router = api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
		HealthChecks:       healthChecks(pool, redisClient, natsClient),
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,
		Me:       authHandler.Me,

		Ask:     chatHandler.Ask,
		Reset:   chatHandler.Reset,
		History: chatHandler.History,

		SaveConversation:  convHandler.Save,
		ListConversations: convHandler.List,

		GetQuota:      quotaHandler.Get,
		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	return router, closeStore, nil
}
