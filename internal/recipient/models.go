package recipient

import (
	"errors"
	"time"
)

// Role is a user role in the tracking application
type Role string

const (
	RoleSoldier    Role = "soldier"
	RoleCommander  Role = "commander"
	RoleSupervisor Role = "supervisor"
	RoleSecurity   Role = "security"
	RoleAdmin      Role = "admin"
)

var (
	// ErrNotFound is returned when a recipient id does not exist
	ErrNotFound = errors.New("recipient not found")
	// ErrUnboundedFilter is returned when a filter has no predicates at all
	ErrUnboundedFilter = errors.New("recipient filter has no predicates")
)

// Recipient is a user together with its registered push destinations
type Recipient struct {
	ID         int64      `json:"id" db:"id"`
	Username   string     `json:"username" db:"username"`
	Role       Role       `json:"role" db:"role"`
	Unit       string     `json:"unit,omitempty" db:"unit"`
	FCMToken   string     `json:"-" db:"fcm_token"`
	ExpoToken  string     `json:"-" db:"expo_token"`
	LastActive *time.Time `json:"last_active,omitempty" db:"last_active"`
}

// Reachable reports whether the recipient has at least one push token
func (r Recipient) Reachable() bool {
	return r.FCMToken != "" || r.ExpoToken != ""
}

// IDs returns the ids of the given recipients in order
func IDs(recipients []Recipient) []int64 {
	ids := make([]int64, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	return ids
}
