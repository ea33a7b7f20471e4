package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/app"
	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/listener"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Alert Listener")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize alert pipeline", zap.Error(err))
	}
	defer components.Close()

	supervisor, err := listener.New(
		listener.PgxDialer(cfg.Database.DSN()),
		cfg.Listener,
		components.Alerts.HandleInserted,
		components.Pool,
		components.Metrics,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create listener", zap.Error(err))
	}

	// Start metrics server if enabled
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, components.Metrics.Handler())
		metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}

		go func() {
			logger.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	if err := supervisor.Run(ctx); err != nil {
		if errors.Is(err, listener.ErrGaveUp) {
			logger.Error("Alert listener stopped permanently", zap.Error(err))
			components.Close()
			logger.Sync()
			os.Exit(1)
		}
		logger.Error("Alert listener error", zap.Error(err))
	}

	logger.Info("Alert listener exited")
}
