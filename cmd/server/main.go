package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/api"
	"github.com/prgf87/socket-io-chat/internal/config"
	"github.com/prgf87/socket-io-chat/internal/fanout"
	"github.com/prgf87/socket-io-chat/internal/session"
	"github.com/prgf87/socket-io-chat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Open the message log: PostgreSQL when configured, SQLite otherwise.
	// Every worker must point at the same store.
	var msgLog store.MessageLog
	if cfg.DatabaseURL != "" {
		pgLog, err := store.NewPostgresLog(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		msgLog = pgLog
		logger.Info().Msg("message log on PostgreSQL")
	} else {
		sqliteLog, err := store.NewSQLiteLog(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		msgLog = sqliteLog
		logger.Info().Str("path", cfg.SQLitePath).Msg("message log on SQLite")
	}
	defer msgLog.Close()

	// Open the broadcast channel: Redis Pub/Sub when configured so all
	// workers share it, in-process otherwise.
	var fan fanout.Fanout
	var opts api.Options
	if cfg.RedisURL != "" {
		redisFan, err := fanout.NewRedisFanout(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		fan = redisFan
		opts.RedisClient = redisFan.Client()
		logger.Info().Msg("broadcast fanout on Redis")
	} else {
		fan = fanout.NewLocalFanout()
		logger.Info().Msg("broadcast fanout in-process (single worker)")
	}
	defer fan.Close()

	opts.RateLimit = cfg.RateLimit
	opts.RateWindow = cfg.RateWindow

	// Session registry subscribes this worker to the fanout channel.
	registry := session.NewRegistry(cfg.RecoveryWindow, cfg.RecoveryBuffer, logger)
	defer registry.Close()
	fan.Subscribe(registry.HandleBroadcast)

	// Create router
	router := api.NewRouter(logger, msgLog, fan, registry, opts)

	// Create server. No WriteTimeout: the event stream stays open for
	// the whole session.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat worker")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
