package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		App:   cfg.App.Name,
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server gracefully stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	if err := app.startConsumers(ctx); err != nil {
		logger.Warn("failed to start order event consumer", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.App.Port, "store", cfg.Store.Driver)
		errCh <- app.http.Listen(cfg.App.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	return app.http.ShutdownWithTimeout(10 * time.Second)
}
