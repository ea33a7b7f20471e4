package delivery

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is the subset of *sql.DB used for inserts
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AttemptLog persists delivery attempts. Rows are only ever inserted.
type AttemptLog struct {
	db Execer
}

// NewAttemptLog creates a new delivery attempt log
func NewAttemptLog(db Execer) *AttemptLog {
	return &AttemptLog{db: db}
}

// Record appends one attempt row
func (l *AttemptLog) Record(ctx context.Context, a Attempt) error {
	query := `
		INSERT INTO notification_delivery_log
			(user_id, delivery_method, delivery_status, fcm_message_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := l.db.ExecContext(ctx, query,
		a.RecipientID, a.Channel, a.Status,
		sql.NullString{String: a.MessageID, Valid: a.MessageID != ""},
		sql.NullString{String: a.Error, Valid: a.Error != ""},
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log delivery attempt: %w", err)
	}
	return nil
}
