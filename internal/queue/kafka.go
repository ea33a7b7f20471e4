package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/config"
)

// Alert lifecycle event kinds
const (
	EventAlertCreated      = "alert.created"
	EventAlertAcknowledged = "alert.acknowledged"
	EventAlertResolved     = "alert.resolved"
)

// Alert command kinds
const (
	CommandZoneBreach = "zone_breach"
	CommandEmergency  = "emergency"
	CommandAssignment = "assignment"
)

// AlertEvent is published whenever an alert is created or changes status
type AlertEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	AlertID    int64     `json:"alert_id"`
	AlertType  string    `json:"alert_type"`
	Severity   string    `json:"severity"`
	Status     string    `json:"status"`
	Unit       string    `json:"unit,omitempty"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	Targeted   int       `json:"targeted"`
	Delivered  int       `json:"delivered"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlertCommand asks the push service to raise an alert or notification.
// Payload carries the request body for Kind.
type AlertCommand struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Producer publishes alert events and commands to Kafka
type Producer struct {
	writer        messageWriter
	eventsTopic   string
	commandsTopic string
	logger        *zap.Logger
}

// Consumer reads alert commands from Kafka
type Consumer struct {
	reader messageReader
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer. The topic is set per message.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer:        writer,
		eventsTopic:   cfg.EventsTopic,
		commandsTopic: cfg.CommandsTopic,
		logger:        logger,
	}
}

// NewConsumer creates a new Kafka consumer for the commands topic
func NewConsumer(cfg config.KafkaConfig, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.CommandsTopic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{reader: reader, logger: logger}
}

// PublishAlertEvent publishes a lifecycle event keyed by alert id so events
// for one alert stay ordered within a partition.
func (p *Producer) PublishAlertEvent(ctx context.Context, ev AlertEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.eventsTopic,
		Key:   []byte(fmt.Sprintf("%d", ev.AlertID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "severity", Value: []byte(ev.Severity)},
		},
		Time: ev.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write alert event to Kafka: %w", err)
	}

	p.logger.Debug("Published alert event",
		zap.String("event_id", ev.ID),
		zap.String("kind", ev.Kind),
		zap.Int64("alert_id", ev.AlertID),
	)
	return nil
}

// PublishAlertCommand enqueues a command for the push service
func (p *Producer) PublishAlertCommand(ctx context.Context, kind string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal command payload: %w", err)
	}

	cmd := AlertCommand{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert command: %w", err)
	}

	msg := kafka.Message{
		Topic:   p.commandsTopic,
		Key:     []byte(cmd.ID),
		Value:   data,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(kind)}},
		Time:    cmd.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to write alert command to Kafka: %w", err)
	}
	return cmd.ID, nil
}

// ConsumeAlertCommands reads commands until ctx is cancelled. Malformed
// messages and handler failures are logged and skipped.
func (c *Consumer) ConsumeAlertCommands(ctx context.Context, handler func(context.Context, AlertCommand) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		var cmd AlertCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			c.logger.Warn("Dropping malformed alert command",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}

		if err := handler(ctx, cmd); err != nil {
			c.logger.Error("Error processing alert command",
				zap.String("command_id", cmd.ID),
				zap.String("kind", cmd.Kind),
				zap.Error(err),
			)
			continue
		}

		c.logger.Info("Processed alert command",
			zap.String("command_id", cmd.ID),
			zap.String("kind", cmd.Kind),
		)
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
