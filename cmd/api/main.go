package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"example.com/agenda/internal/api"
	"example.com/agenda/internal/auth"
	"example.com/agenda/internal/config"
	"example.com/agenda/internal/consumer"
	"example.com/agenda/internal/domain"
	"example.com/agenda/internal/feed"
	"example.com/agenda/internal/identity"
	"example.com/agenda/internal/outbox"
	persistence "example.com/agenda/internal/persistence/postgres"
	"example.com/agenda/internal/session"
	httptransport "example.com/agenda/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if cfg.MigrationsDir != "" {
		if err := persistence.ApplyMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	}

	repo := persistence.NewRepository(pool)
	checker := domain.NewConflictChecker(repo)
	hub := feed.NewHub(repo)
	service := domain.NewService(repo, checker, hub)

	publisher := outbox.NewChangePublisher(cfg.KafkaBrokers, cfg.ChangeTopic)
	defer publisher.Close()

	registry := outbox.NewSchemaRegistry(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, publisher, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	// Change feed consumer keeps the in-process hub current so event
	// stream subscribers see every committed mutation.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.FeedConsumerGroup,
		Topic:           cfg.ChangeTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	feedProc := consumer.NewProcessor(reader, feed.NewHandler(hub), nil)
	go func() {
		defer reader.Close()
		if err := feedProc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("feed consumer stopped with error: %v", err)
		}
	}()

	userStore := persistence.NewUserStore(pool)
	sessions := session.NewRedisStoreWithClient(redisClient)
	limiter := identity.NewRateLimiter(redisClient, int64(cfg.AuthRateLimit), cfg.AuthRateWindow)
	issuer := identity.TokenIssuer{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.AccessTokenTTL}
	ident := identity.NewService(userStore, sessions, limiter, issuer, log.Default())

	handler := api.NewHandler(service, ident)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	// CORS sits outermost: preflight OPTIONS requests carry no bearer token
	// and must be answered before authentication, and rejected requests
	// still need the allow-origin header for the browser to read them.
	root := httptransport.CORS("http://localhost:5173",
		authMiddleware.Wrap(
			httptransport.RequestLogger(log.Default(), mux)))

	// WriteTimeout stays zero so event streams are not cut mid-connection.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.HTTPAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, root)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("agenda-api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}
