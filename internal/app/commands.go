package app

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/alert"
	"github.com/alexnthnz/alert-fanout/internal/notification"
	"github.com/alexnthnz/alert-fanout/internal/queue"
)

// CommandAlerts is the part of the alert service commands drive
type CommandAlerts interface {
	ZoneBreach(ctx context.Context, req alert.ZoneBreachRequest) (*alert.Outcome, error)
	Emergency(ctx context.Context, req alert.EmergencyRequest) (*alert.Outcome, error)
}

// CommandNotifier is the part of the notification service commands drive
type CommandNotifier interface {
	NotifyAssignment(ctx context.Context, req notification.AssignmentRequest) (*notification.AssignmentResult, error)
}

// CommandHandler routes queued alert commands to the services
func CommandHandler(alerts CommandAlerts, notifier CommandNotifier, logger *zap.Logger) func(context.Context, queue.AlertCommand) error {
	return func(ctx context.Context, cmd queue.AlertCommand) error {
		switch cmd.Kind {
		case queue.CommandZoneBreach:
			var req alert.ZoneBreachRequest
			if err := json.Unmarshal(cmd.Payload, &req); err != nil {
				return fmt.Errorf("decode %s command: %w", cmd.Kind, err)
			}
			out, err := alerts.ZoneBreach(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("Zone breach command handled", zap.String("command_id", cmd.ID), zap.Int64("alert_id", out.Record.ID))

		case queue.CommandEmergency:
			var req alert.EmergencyRequest
			if err := json.Unmarshal(cmd.Payload, &req); err != nil {
				return fmt.Errorf("decode %s command: %w", cmd.Kind, err)
			}
			out, err := alerts.Emergency(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("Emergency command handled", zap.String("command_id", cmd.ID), zap.Int64("alert_id", out.Record.ID))

		case queue.CommandAssignment:
			var req notification.AssignmentRequest
			if err := json.Unmarshal(cmd.Payload, &req); err != nil {
				return fmt.Errorf("decode %s command: %w", cmd.Kind, err)
			}
			if _, err := notifier.NotifyAssignment(ctx, req); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown command kind %q", cmd.Kind)
		}
		return nil
	}
}
