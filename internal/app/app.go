// Package app wires the alert pipeline from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/alert"
	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/database"
	"github.com/alexnthnz/alert-fanout/internal/delivery"
	"github.com/alexnthnz/alert-fanout/internal/monitoring"
	"github.com/alexnthnz/alert-fanout/internal/notification"
	"github.com/alexnthnz/alert-fanout/internal/queue"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
	"github.com/alexnthnz/alert-fanout/internal/worker"
)

// Components is the wired alert pipeline shared by every binary
type Components struct {
	Config        *config.Config
	Postgres      *database.PostgresDB
	Redis         *database.RedisClient
	Producer      *queue.Producer
	Metrics       *monitoring.Metrics
	Pool          *worker.Pool
	Push          *channels.PushChannel
	Orchestrator  *delivery.Orchestrator
	Alerts        *alert.Service
	Notifications *notification.Service

	logger *zap.Logger
}

// Build connects to every backing service and assembles the pipeline.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (c *Components, err error) {
	c = &Components{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	c.Metrics = monitoring.NewMetrics(prometheus.DefaultRegisterer)

	c.Postgres, err = database.NewPostgresDB(ctx, cfg.Database)
	if err != nil {
		return c, fmt.Errorf("postgres: %w", err)
	}
	logger.Info("Database connected")

	c.Redis, err = database.NewRedisClient(cfg.Redis)
	if err != nil {
		return c, fmt.Errorf("redis: %w", err)
	}
	logger.Info("Redis connected")

	c.Producer = queue.NewProducer(cfg.Kafka, logger)
	logger.Info("Kafka producer initialized")

	c.Pool, err = worker.NewPool(ctx, cfg.Workers.PoolSize, logger)
	if err != nil {
		return c, fmt.Errorf("worker pool: %w", err)
	}

	messaging, err := channels.NewMessagingClient(ctx, cfg.Channels.Firebase)
	if err != nil {
		return c, fmt.Errorf("firebase: %w", err)
	}
	c.Push = channels.NewPushChannel(messaging, logger)
	expo := channels.NewExpoChannel(cfg.Channels.Expo, logger)
	logger.Info("Push channels initialized")

	resolver := recipient.NewResolver(c.Postgres, recipient.Policy{RecencyWindow: cfg.Delivery.RecencyWindow})
	c.Orchestrator = delivery.NewOrchestrator(
		resolver,
		c.Push,
		expo,
		delivery.NewAttemptLog(c.Postgres),
		c.Metrics,
		logger,
		delivery.OptionsFromConfig(cfg.Delivery),
	)

	c.Alerts = alert.NewService(alert.Deps{
		Repo:       alert.NewStore(c.Postgres),
		Recipients: resolver,
		Delivery:   c.Orchestrator,
		Topics:     c.Push,
		Events:     c.Producer,
		Claims:     c.Redis,
		Tasks:      c.Pool,
		Metrics:    c.Metrics,
		Logger:     logger,
	}, alert.Options{
		FallbackTopic:      cfg.Channels.Firebase.FallbackTopic,
		EmergencyRateLimit: cfg.Delivery.EmergencyRateLimit,
		ClaimTTL:           cfg.Listener.ClaimTTL,
	})
	c.Notifications = notification.NewService(c.Postgres, c.Orchestrator, logger)

	return c, nil
}

// Close releases everything Build opened, in reverse order
func (c *Components) Close() {
	if c.Pool != nil {
		c.Pool.Shutdown()
	}
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			c.logger.Warn("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			c.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
