// Command api starts the admin HTTP API for the job queue.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/api"
	"github.com/leejennwah/compliance-queue/internal/audit"
	"github.com/leejennwah/compliance-queue/internal/config"
	"github.com/leejennwah/compliance-queue/internal/processor"
	"github.com/leejennwah/compliance-queue/internal/queue"
	"github.com/leejennwah/compliance-queue/internal/storage"
	"github.com/leejennwah/compliance-queue/internal/tracing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()

	shutdownTracer, err := tracing.Init(ctx, "queue-api", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTracer(context.Background())
	}

	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, queue runs without a store")
	}
	q := queue.Default()

	var events audit.Repository = audit.Nop{}
	if cfg.DatabaseURL != "" {
		pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("parse postgres config", zap.Error(err))
		}
		pgConfig.MaxConns = 10
		pgConfig.MinConns = 2
		pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
		if err != nil {
			logger.Fatal("connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		events = storage.NewPostgresEventRepository(pool, logger)
	} else {
		logger.Info("DATABASE_URL not set, queue events are not recorded")
	}

	proc := processor.New(q, q.Metrics(), logger.Named("processor"))
	proc.RegisterHandlers(processor.DefaultHandlers(logger.Named("handlers")))

	handler := api.NewHandler(q, proc, events, q.Config().BatchSize, logger)

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api server starting", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
}
