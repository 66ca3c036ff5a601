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

	httpadapter "github.com/kirillkom/media-upload-router/internal/adapters/http"
	"github.com/kirillkom/media-upload-router/internal/bootstrap"
	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/observability/logging"
	"github.com/kirillkom/media-upload-router/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithObservers(httpMetrics.Decisions()))
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.WatchFlagCatalog(ctx)

	deps := httpadapter.Dependencies{
		Resolver:    app.Resolver,
		Recommender: app.Recommender,
		Flags:       app.Flags,
		Recovery:    app.Recovery,
		Breakers:    app.Dependencies,
		Uploads:     app.UploadUC,
		Migrations:  app.MigrationUC,
		Assets:      app.Assets,
		Members:     app.Orgs,
		Presigner:   app.Presigner,
		Exporter:    app.Exporter,
		Metrics:     httpMetrics,
	}
	router := httpadapter.NewRouter(cfg, deps).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "storage_backend", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
