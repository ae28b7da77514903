package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/signalops/app"
	"github.com/upb/signalops/config"
	"github.com/upb/signalops/internal/observability"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting signalops worker",
		zap.String("environment", cfg.Environment),
		zap.String("consumer", cfg.Queue.ConsumerName),
		zap.Int("concurrency", cfg.Queue.Concurrency))

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	pipeline, err := deps.NewPipeline(ctx)
	if err != nil {
		return err
	}

	if cfg.Observability.MetricsEnabled {
		srv := newMetricsServer(cfg, deps.Registry)
		go func() {
			if err := app.ListenAndServe(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// Jobs run on their own context so a signal lets in-flight work finish
	// instead of cancelling it.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Run(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining workers")
	stopErr := pipeline.Stop(cfg.Queue.JobTimeout + cfg.Queue.Block)
	cancelRun()
	<-done
	return stopErr
}

func newMetricsServer(cfg *config.Config, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
