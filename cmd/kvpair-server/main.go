// Command kvpair-server starts the KVPair Merkle state manager: it connects
// to MongoDB (and Redis, when the distributed Concurrency Gate is
// configured), wires the Merkle Engine and Request Handler, and serves the
// REST transport until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kvpair-io/kvpair-server/internal/kvpair"
	"github.com/kvpair-io/kvpair-server/internal/lock"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
	"github.com/kvpair-io/kvpair-server/internal/ratelimit"
	"github.com/kvpair-io/kvpair-server/internal/store"
	"github.com/kvpair-io/kvpair-server/internal/transport"
)

func main() {
	logger := newLogger()
	logger.Info().Msg("starting kvpair-server")

	cfg, err := kvpair.ConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	mongoStore, err := store.Connect(ctx, store.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoStore.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("error closing mongodb connection")
		}
	}()
	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")

	redisClient, gate, err := newGate(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize concurrency gate")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	engine := merkletree.NewEngine(mongoStore)
	service := kvpair.NewService(engine, mongoStore, gate, logger, cfg.DefaultTenant)
	limiter := ratelimit.NewLimiter(redisClient, logger)
	server := transport.NewServer(service, logger, limiter, cfg.RateLimitPerMinute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("exited gracefully")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || os.Getenv("LOG_LEVEL") == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

// newGate builds the Concurrency Gate selected by cfg.LockMode. When the
// redis mode is selected it also returns the Redis client so callers can
// reuse the same connection for request rate limiting and close it on exit.
func newGate(ctx context.Context, cfg kvpair.Config, logger zerolog.Logger) (*redis.Client, lock.TenantLock, error) {
	switch cfg.LockMode {
	case kvpair.LockModeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info().Msg("using distributed (redis) concurrency gate")
		return client, lock.NewDistributedGate(client, 30*time.Second), nil
	case kvpair.LockModeInProcess:
		logger.Info().Msg("using in-process concurrency gate")
		return nil, lock.NewGate(), nil
	default:
		return nil, nil, fmt.Errorf("unknown lock mode %q", cfg.LockMode)
	}
}
