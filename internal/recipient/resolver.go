package recipient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is the subset of *sql.DB used by the resolver
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectRecipients = `
	SELECT id, username, role, COALESCE(unit, ''), COALESCE(fcm_token, ''),
	       COALESCE(expo_token, ''), last_active
	FROM users`

// Resolver turns targeting filters into concrete recipients
type Resolver struct {
	db     Querier
	policy Policy
}

// NewResolver creates a new recipient resolver
func NewResolver(db Querier, policy Policy) *Resolver {
	return &Resolver{db: db, policy: policy}
}

// Broad builds a broad targeting filter using the resolver's policy
func (r *Resolver) Broad(predicates ...Predicate) Filter {
	return r.policy.Broad(predicates...)
}

// Resolve returns every recipient matching the filter. No match is an empty
// slice, not an error.
func (r *Resolver) Resolve(ctx context.Context, filter Filter) ([]Recipient, error) {
	if filter.IsEmpty() {
		return nil, ErrUnboundedFilter
	}

	where, args := filter.SQL(1)
	query := selectRecipients + " WHERE " + where + " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	defer rows.Close()

	recipients := []Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return recipients, nil
}

// Lookup loads a single recipient by id regardless of activity
func (r *Resolver) Lookup(ctx context.Context, id int64) (*Recipient, error) {
	row := r.db.QueryRowContext(ctx, selectRecipients+" WHERE id = $1", id)
	rec, err := scanRecipient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipient %d: %w", id, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(s scanner) (*Recipient, error) {
	var rec Recipient
	var role string
	var lastActive sql.NullTime
	if err := s.Scan(&rec.ID, &rec.Username, &role, &rec.Unit, &rec.FCMToken, &rec.ExpoToken, &lastActive); err != nil {
		return nil, err
	}
	rec.Role = Role(role)
	if lastActive.Valid {
		rec.LastActive = &lastActive.Time
	}
	return &rec, nil
}
