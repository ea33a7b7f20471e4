package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DB is the subset of *sql.DB used by the store
type DB interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const alertColumns = `
	id, alert_type, COALESCE(title, ''), message, severity, status, user_id, unit, zone_id,
	affected_units, affected_users, location_lat, location_lng, COALESCE(source, ''),
	created_by, created_at, acknowledged_by, acknowledged_at, resolved_by, resolved_at`

// Store persists alert records in PostgreSQL
type Store struct {
	db DB
}

// NewStore creates a new alert store
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Insert writes a new alert and fills in its id and creation time
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO alerts (alert_type, title, message, severity, status, user_id, unit, zone_id,
			affected_units, affected_users, location_lat, location_lng, source, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		rec.Type, rec.Title, rec.Message, rec.Severity, rec.Status, rec.UserID, rec.Unit, rec.ZoneID,
		pq.Array(nonNilStrings(rec.AffectedUnits)), pq.Array(nonNilInts(rec.AffectedUsers)),
		rec.Latitude, rec.Longitude, rec.Source, rec.CreatedBy,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Get retrieves an alert by id
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = $1", id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return rec, nil
}

// Transition moves an alert to next when the lifecycle allows it. The
// status check and update happen in a single statement.
func (s *Store) Transition(ctx context.Context, id int64, next Status, actor int64) (*Record, error) {
	var query string
	switch next {
	case StatusAcknowledged:
		query = `
			UPDATE alerts SET status = $2, acknowledged_by = $3, acknowledged_at = NOW()
			WHERE id = $1 AND status = 'active'
			RETURNING ` + alertColumns
	case StatusResolved:
		query = `
			UPDATE alerts SET status = $2, resolved_by = $3, resolved_at = NOW()
			WHERE id = $1 AND status IN ('active', 'acknowledged')
			RETURNING ` + alertColumns
	default:
		return nil, fmt.Errorf("%w: to %s", ErrInvalidTransition, next)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id, next, actor))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
}

// GetZone retrieves the zone attributes used in breach alerts
func (s *Store) GetZone(ctx context.Context, id int64) (*Zone, error) {
	var z Zone
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, COALESCE(zone_type, ''), COALESCE(unit, '') FROM zones WHERE id = $1", id,
	).Scan(&z.ID, &z.Name, &z.ZoneType, &z.Unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return &z, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var severity, status string
	var userID, zoneID, createdBy, ackBy, resolvedBy sql.NullInt64
	var unit sql.NullString
	var lat, lng sql.NullFloat64
	var ackAt, resolvedAt sql.NullTime
	var units pq.StringArray
	var users pq.Int64Array

	err := row.Scan(
		&rec.ID, &rec.Type, &rec.Title, &rec.Message, &severity, &status, &userID, &unit, &zoneID,
		&units, &users, &lat, &lng, &rec.Source,
		&createdBy, &rec.CreatedAt, &ackBy, &ackAt, &resolvedBy, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Severity = Severity(severity)
	rec.Status = Status(status)
	rec.UserID = nullInt(userID)
	rec.ZoneID = nullInt(zoneID)
	rec.CreatedBy = nullInt(createdBy)
	rec.AcknowledgedBy = nullInt(ackBy)
	rec.ResolvedBy = nullInt(resolvedBy)
	if unit.Valid {
		rec.Unit = &unit.String
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lng.Valid {
		rec.Longitude = &lng.Float64
	}
	if ackAt.Valid {
		rec.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		rec.ResolvedAt = &resolvedAt.Time
	}
	rec.AffectedUnits = []string(units)
	rec.AffectedUsers = []int64(users)
	return &rec, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInts(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
