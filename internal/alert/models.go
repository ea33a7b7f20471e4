package alert

import (
	"errors"
	"time"

	"github.com/alexnthnz/alert-fanout/internal/delivery"
)

var (
	// ErrNotFound is returned when an alert, zone or actor does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids
	ErrInvalidTransition = errors.New("invalid alert status transition")
	// ErrValidation is returned when a request is missing required fields
	ErrValidation = errors.New("validation failed")
)

// Severity of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the lifecycle state of an alert
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// Resolution does not require acknowledgment; nothing leaves resolved.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusAcknowledged || next == StatusResolved
	case StatusAcknowledged:
		return next == StatusResolved
	default:
		return false
	}
}

// Alert types produced by this service
const (
	TypeZoneBreach = "zone_breach"
	TypeEmergency  = "emergency"
)

// Record sources. Rows written by this service are skipped by the insert listener.
const (
	SourceService = "service"
)

// Record is a persisted alert
type Record struct {
	ID             int64      `json:"id" db:"id"`
	Type           string     `json:"alert_type" db:"alert_type"`
	Title          string     `json:"title" db:"title"`
	Message        string     `json:"message" db:"message"`
	Severity       Severity   `json:"severity" db:"severity"`
	Status         Status     `json:"status" db:"status"`
	UserID         *int64     `json:"user_id,omitempty" db:"user_id"`
	Unit           *string    `json:"unit,omitempty" db:"unit"`
	ZoneID         *int64     `json:"zone_id,omitempty" db:"zone_id"`
	AffectedUnits  []string   `json:"affected_units,omitempty" db:"affected_units"`
	AffectedUsers  []int64    `json:"affected_users,omitempty" db:"affected_users"`
	Latitude       *float64   `json:"location_lat,omitempty" db:"location_lat"`
	Longitude      *float64   `json:"location_lng,omitempty" db:"location_lng"`
	Source         string     `json:"source,omitempty" db:"source"`
	CreatedBy      *int64     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	AcknowledgedBy *int64     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedBy     *int64     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Zone is the part of a geofence the alert pipeline reads
type Zone struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	ZoneType string `json:"zone_type" db:"zone_type"`
	Unit     string `json:"unit,omitempty" db:"unit"`
}

// CreateRequest is the body of a manual alert creation
type CreateRequest struct {
	Category  string   `json:"category" validate:"required"`
	Title     string   `json:"title"`
	Message   string   `json:"message" validate:"required"`
	Severity  Severity `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Status    Status   `json:"status" validate:"omitempty,oneof=active"`
	UserID    *int64   `json:"userId"`
	Unit      *string  `json:"unit"`
	CreatedBy *int64   `json:"createdBy"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// ZoneBreachRequest reports a user crossing a zone boundary
type ZoneBreachRequest struct {
	ZoneID     int64    `json:"zoneId" validate:"required"`
	UserID     int64    `json:"userId" validate:"required"`
	BreachType string   `json:"breachType" validate:"required"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// EmergencyRequest raises an emergency for users and units
type EmergencyRequest struct {
	Title         string   `json:"title" validate:"required"`
	Message       string   `json:"message" validate:"required"`
	Severity      Severity `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	AffectedUnits []string `json:"affectedUnits"`
	AffectedUsers []int64  `json:"affectedUsers"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,longitude"`
	CreatedBy     *int64   `json:"createdBy"`
}

// Broadcast is the outcome of a topic fallback
type Broadcast struct {
	Topic     string `json:"topic"`
	Reason    string `json:"reason"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Delivery is the fan-out result attached to an alert
type Delivery struct {
	delivery.Summary
	RateLimit int               `json:"rate_limit,omitempty"`
	Results   []delivery.Result `json:"results,omitempty"`
	Broadcast *Broadcast        `json:"broadcast,omitempty"`
}

// Outcome is returned by every alert-producing operation
type Outcome struct {
	Record   *Record  `json:"record"`
	Delivery Delivery `json:"delivery"`
}
