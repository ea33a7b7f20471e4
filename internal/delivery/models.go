package delivery

import (
	"errors"
	"time"
)

var (
	// ErrNoTokens is returned when a recipient has no push token on any channel
	ErrNoTokens = errors.New("no push tokens registered")
)

// AttemptStatus is the outcome of one channel attempt
type AttemptStatus string

const (
	StatusDelivered AttemptStatus = "delivered"
	StatusFailed    AttemptStatus = "failed"
)

// Attempt is one append-only delivery log row
type Attempt struct {
	RecipientID int64         `json:"recipient_id" db:"user_id"`
	Channel     string        `json:"channel" db:"delivery_method"`
	Status      AttemptStatus `json:"status" db:"delivery_status"`
	MessageID   string        `json:"message_id,omitempty" db:"fcm_message_id"`
	Error       string        `json:"error,omitempty" db:"error_message"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// ChannelOutcome is the terminal result of one channel for one recipient
type ChannelOutcome struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
}

// Result aggregates every channel outcome for one recipient
type Result struct {
	RecipientID int64            `json:"recipient_id"`
	Username    string           `json:"username,omitempty"`
	Success     bool             `json:"success"`
	Outcomes    []ChannelOutcome `json:"outcomes,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Summary counts bulk results
type Summary struct {
	Targeted  int `json:"targeted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Summarize counts successful and failed results
func Summarize(results []Result) Summary {
	s := Summary{Targeted: len(results)}
	for _, r := range results {
		if r.Success {
			s.Delivered++
		} else {
			s.Failed++
		}
	}
	return s
}
