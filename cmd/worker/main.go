// Command worker polls the queue and runs due jobs.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/config"
	"github.com/leejennwah/compliance-queue/internal/processor"
	"github.com/leejennwah/compliance-queue/internal/queue"
	"github.com/leejennwah/compliance-queue/internal/tracing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()

	shutdownTracer, err := tracing.Init(ctx, "queue-worker", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTracer(context.Background())
	}

	if cfg.Redis.URL == "" {
		logger.Fatal("REDIS_URL is required for the worker")
	}
	q := queue.Default()

	proc := processor.New(q, q.Metrics(), logger.Named("processor"))
	proc.RegisterHandlers(processor.DefaultHandlers(logger.Named("handlers")))

	// Expose metrics endpoint for Prometheus scraping.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := proc.Run(ctx, cfg.PollInterval, q.Config().BatchSize); err != nil {
		logger.Fatal("processor error", zap.Error(err))
	}
}
