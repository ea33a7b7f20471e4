package notification

import (
	"errors"
	"time"

	"github.com/alexnthnz/alert-fanout/internal/delivery"
)

// ErrValidation is returned for malformed notification requests
var ErrValidation = errors.New("validation failed")

// Notification types and sources stored with each record
const (
	TypeAssignment   = "assignment"
	SourceSystem     = "system"
	PriorityUrgent   = "urgent"
	defaultListLimit = 50
	maxListLimit     = 200
)

// Record is a notification history entry shown in the user's inbox
type Record struct {
	ID        int64          `json:"id" db:"id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	Title     string         `json:"title" db:"title"`
	Message   string         `json:"message" db:"message"`
	Type      string         `json:"type" db:"type"`
	Category  string         `json:"category" db:"category"`
	Priority  string         `json:"priority" db:"priority"`
	Source    string         `json:"source" db:"source"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
	IsRead    bool           `json:"is_read" db:"is_read"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// AssignmentRequest notifies a user of a new assignment
type AssignmentRequest struct {
	AssignmentID int64      `json:"assignmentId" validate:"required"`
	AssignedTo   int64      `json:"assignedTo" validate:"required"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	DueDate      *time.Time `json:"dueDate"`
}

// AssignmentResult is the outcome of an assignment notification
type AssignmentResult struct {
	Record   *Record          `json:"record"`
	Success  bool             `json:"success"`
	Delivery *delivery.Result `json:"delivery,omitempty"`
	Error    string           `json:"error,omitempty"`
}
