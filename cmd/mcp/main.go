package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/media-upload-router/internal/adapters/mcp"
	"github.com/kirillkom/media-upload-router/internal/bootstrap"
	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/observability/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// stdout carries the protocol, logs go to stderr.
	logger := logging.New("mcp", cfg.LogLevel, logging.FormatJSON, os.Stderr)
	slog.SetDefault(logger)

	core, err := bootstrap.NewCore(cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	server := mcpadapter.New(mcpadapter.Dependencies{
		Resolver:    core.Resolver,
		Recommender: core.Recommender,
		Flags:       core.Flags,
		Recovery:    core.Recovery,
	}, version)

	logger.Info("mcp_stdio_started", "version", version)
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
