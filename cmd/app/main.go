package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/cache"
	"chat-relay/internal/config"
	"chat-relay/internal/dialogue"
	"chat-relay/internal/gateway"
	"chat-relay/internal/httpserver"
	"chat-relay/internal/logging"
	"chat-relay/internal/metrics"
	"chat-relay/internal/payment"
	"chat-relay/internal/relay"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chat-relay", "env", cfg.AppEnv, "dialogue_url", cfg.DialogueBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	dialogueClient := dialogue.New(dialogue.Config{
		BaseURL: cfg.DialogueBaseURL,
		Timeout: cfg.DialogueTimeout,
	}, logger, metricRegistry)

	paymentClient := payment.New(payment.Config{
		BaseURL: cfg.AbacateBaseURL,
		APIKey:  cfg.AbacateAPIKey,
		Timeout: cfg.AbacateTimeout,
		Expiry:  cfg.PixExpires,
	}, logger, metricRegistry)

	orchestrator := relay.New(dialogueClient, paymentClient, metricRegistry, logger)

	gw := gateway.New(gateway.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		HandleTimeout:  cfg.DialogueTimeout + cfg.AbacateTimeout + cfg.DialogueTimeout,
		RateLimit:      cfg.SessionRateLimit,
	}, orchestrator, redisClient, metricRegistry, logger)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, httpserver.Handlers{
		WebSocket:   gw.ServeWS,
		ChatMessage: gw.ServeChatMessage,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
