package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// Channel names as written to the delivery log
const (
	ChannelFCM  = "fcm"
	ChannelExpo = "expo"
)

// Message is a normalized push message. Data is never nil.
type Message struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// NewMessage creates a message with a non-nil data map
func NewMessage(title, body string, data map[string]any) Message {
	if data == nil {
		data = map[string]any{}
	}
	return Message{Title: title, Body: body, Data: data}
}

// Type returns the "type" data field used for styling, or "".
func (m Message) Type() string {
	if t, ok := m.Data["type"].(string); ok {
		return t
	}
	return ""
}

// StringData coerces the data map to strings. Nil values are dropped,
// composite values are JSON encoded.
func (m Message) StringData() map[string]string {
	out := make(map[string]string, len(m.Data))
	for k, v := range m.Data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
			out[k] = fmt.Sprint(val)
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		case fmt.Stringer:
			out[k] = val.String()
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// Channel is a personal push channel addressed by a device token
type Channel interface {
	Send(ctx context.Context, token string, msg Message, to recipient.Recipient) (string, error)
	GetChannelType() string
}

// ErrorCode classifies provider failures
type ErrorCode string

const (
	CodeUnavailable       ErrorCode = "unavailable"
	CodeInternal          ErrorCode = "internal-error"
	CodeServerUnavailable ErrorCode = "server-unavailable"
	CodeQuotaExceeded     ErrorCode = "quota-exceeded"
	CodeNetwork           ErrorCode = "network-error"
	CodeInvalidToken      ErrorCode = "invalid-token"
	CodeInvalidArgument   ErrorCode = "invalid-argument"
	CodeProviderRejected  ErrorCode = "provider-rejected"
	CodeUnknown           ErrorCode = "unknown"
)

var retryableCodes = map[ErrorCode]bool{
	CodeUnavailable:       true,
	CodeInternal:          true,
	CodeServerUnavailable: true,
	CodeQuotaExceeded:     true,
	CodeNetwork:           true,
}

// Retryable reports whether the code is a transient provider condition
func (c ErrorCode) Retryable() bool {
	return retryableCodes[c]
}

// ChannelError is a typed provider failure
type ChannelError struct {
	Channel string
	Code    ErrorCode
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Channel, e.Code, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable provider code
func IsRetryable(err error) bool {
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return chErr.Code.Retryable()
	}
	return false
}

// IsTransient reports connection reset, host-not-found and timeout errors
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
