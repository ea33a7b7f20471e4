package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/app"
	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/queue"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Push Command Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize alert pipeline", zap.Error(err))
	}
	defer components.Close()

	// Initialize Kafka consumer
	consumer := queue.NewConsumer(cfg.Kafka, "push-service", logger)
	defer consumer.Close()
	logger.Info("Kafka consumer initialized", zap.String("topic", cfg.Kafka.CommandsTopic))

	handle := app.CommandHandler(components.Alerts, components.Notifications, logger)
	if err := consumer.ConsumeAlertCommands(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer error", zap.Error(err))
	}

	logger.Info("Push service exited")
}
