package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/graph-api-client/pkg/graph"
	"github.com/Sternrassler/graph-api-client/pkg/logging"
	"github.com/Sternrassler/graph-api-client/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "graph-proxy",
	})
	logger := logging.NewLogger("graph-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		logger.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
	}

	tr, err := newTransport(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transport")
	}
	defer tr.Close()

	client, err := graph.New(graph.Config{Sender: tr, AccessToken: cfg.AccessToken})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create graph client")
	}

	srv := &server{
		client:   client,
		redis:    redisClient,
		maxPages: cfg.MaxPages,
		timeout:  cfg.RequestTimeout,
		logger:   logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("user_agent", cfg.UserAgent).
		Bool("access_token", cfg.AccessToken != "").
		Msg("Starting graph proxy")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Graph proxy stopped")
}

func newTransport(cfg Config, redisClient *redis.Client) (*transport.Transport, error) {
	tcfg := transport.DefaultConfig(cfg.UserAgent)
	tcfg.BaseURL = cfg.BaseURL
	tcfg.Redis = redisClient
	tcfg.RateLimit = cfg.RateLimit
	tcfg.Timeout = cfg.RequestTimeout
	tcfg.Retry.MaxAttempts = cfg.MaxRetries + 1
	return transport.New(tcfg)
}
