package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/media-upload-router/internal/bootstrap"
	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/observability/logging"
	"github.com/kirillkom/media-upload-router/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithObservers(workerMetrics.Decisions()))
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.WatchFlagCatalog(ctx)

	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      metricsMux(workerMetrics),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	handlers := newEventHandlers(workerMetrics, time.Now)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.Bus.SubscribeUploadEvents(groupCtx, handlers.uploadEvent)
	})
	group.Go(func() error {
		return app.Bus.SubscribeToggles(groupCtx, handlers.toggle)
	})
	if app.SyncUC != nil {
		syncer := &offlineSyncer{sync: app.SyncUC, stats: app.Offline, metrics: workerMetrics}
		group.Go(func() error {
			syncer.run(groupCtx, cfg.OfflineSyncInterval)
			return nil
		})
	} else {
		logger.Info("offline_sync_disabled", "reason", "OFFLINE_QUEUE_PATH is empty")
	}
	logger.Info("worker_subscribed", "prefix", cfg.NATSSubjectPrefix)

	if err := group.Wait(); err != nil {
		logger.Error("worker_stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
}

func metricsMux(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
