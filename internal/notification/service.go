package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/delivery"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// DB is the subset of *sql.DB used by the service
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Deliverer sends a message to one recipient
type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, msg channels.Message) (*delivery.Result, error)
}

// Service handles per-user notifications and their inbox history
type Service struct {
	db       DB
	delivery Deliverer
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService creates a new notification service
func NewService(db DB, deliverer Deliverer, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		delivery: deliverer,
		logger:   logger,
		validate: validator.New(),
	}
}

// NotifyAssignment pushes a new-assignment message to the assignee and
// stores it in their inbox. A failed push is reported in the result; the
// inbox record is written either way.
func (s *Service) NotifyAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	pushPriority := "normal"
	if req.Priority == PriorityUrgent {
		pushPriority = "high"
	}
	body := req.Description
	if body == "" {
		body = "You have been assigned a new task"
	}

	data := map[string]any{
		"type":               channels.TypeAssignment,
		"category":           TypeAssignment,
		"priority":           pushPriority,
		"assignmentId":       req.AssignmentID,
		"title":              req.Title,
		"description":        req.Description,
		"assignmentPriority": req.Priority,
	}
	if req.DueDate != nil {
		data["dueDate"] = *req.DueDate
	}
	msg := channels.NewMessage("New Assignment: "+req.Title, body, data)

	result := &AssignmentResult{}
	res, err := s.delivery.Deliver(ctx, req.AssignedTo, msg)
	switch {
	case errors.Is(err, recipient.ErrNotFound):
		return nil, err
	case err != nil:
		result.Error = err.Error()
		s.logger.Warn("Assignment push not delivered",
			zap.Int64("user_id", req.AssignedTo),
			zap.Int64("assignment_id", req.AssignmentID),
			zap.Error(err),
		)
	default:
		result.Delivery = res
		result.Success = res.Success
	}

	rec := &Record{
		UserID:   req.AssignedTo,
		Title:    msg.Title,
		Message:  msg.Body,
		Type:     TypeAssignment,
		Category: TypeAssignment,
		Priority: req.Priority,
		Source:   SourceSystem,
		Data:     msg.Data,
	}
	if rec.Priority == "" {
		rec.Priority = "normal"
	}
	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}
	result.Record = rec

	s.logger.Info("Assignment notification processed",
		zap.Int64("user_id", req.AssignedTo),
		zap.Int64("assignment_id", req.AssignmentID),
		zap.Bool("delivered", result.Success),
	)
	return result, nil
}

func (s *Service) insert(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (user_id, title, message, type, category, priority, source, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		rec.UserID, rec.Title, rec.Message, rec.Type, rec.Category, rec.Priority, rec.Source, payload,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's most recent notifications, newest first
func (s *Service) ListForUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, user_id, title, message, COALESCE(type, ''), COALESCE(category, ''),
		       COALESCE(priority, ''), COALESCE(source, ''), data, COALESCE(is_read, false), created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var data []byte
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Title, &rec.Message, &rec.Type, &rec.Category,
			&rec.Priority, &rec.Source, &data, &rec.IsRead, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Data); err != nil {
				s.logger.Warn("Ignoring malformed notification data", zap.Int64("id", rec.ID), zap.Error(err))
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return records, nil
}
