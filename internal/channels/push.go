package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// messagingClient is the part of *messaging.Client the push channels use
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// NewMessagingClient initializes the Firebase app once and returns its messaging client
func NewMessagingClient(ctx context.Context, cfg config.FirebaseConfig) (*messaging.Client, error) {
	if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("Firebase credentials file not found at %s", cfg.CredentialsPath)
	}

	var appConfig *firebase.Config
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase messaging client: %w", err)
	}

	return client, nil
}

// PushChannel handles token push notifications using Firebase Cloud Messaging
type PushChannel struct {
	client messagingClient
	logger *zap.Logger
	now    func() time.Time
}

// NewPushChannel creates a new FCM push channel over a shared messaging client
func NewPushChannel(client *messaging.Client, logger *zap.Logger) *PushChannel {
	return newPushChannel(client, logger)
}

func newPushChannel(client messagingClient, logger *zap.Logger) *PushChannel {
	return &PushChannel{client: client, logger: logger, now: time.Now}
}

// Send sends a push notification to one device token
func (p *PushChannel) Send(ctx context.Context, token string, msg Message, to recipient.Recipient) (string, error) {
	data := msg.StringData()
	data["userId"] = strconv.FormatInt(to.ID, 10)
	data["username"] = to.Username
	data["role"] = string(to.Role)
	data["timestamp"] = p.now().UTC().Format(time.RFC3339)

	message := buildMessage(msg, data)
	message.Token = token

	response, err := p.client.Send(ctx, message)
	if err != nil {
		return "", classifyFCMError(err)
	}

	p.logger.Debug("FCM push sent",
		zap.Int64("recipient_id", to.ID),
		zap.String("message_id", response),
	)
	return response, nil
}

// GetChannelType returns the channel type
func (p *PushChannel) GetChannelType() string {
	return ChannelFCM
}

// Broadcast sends a message to every device subscribed to the topic
func (p *PushChannel) Broadcast(ctx context.Context, topic string, msg Message) (string, error) {
	name := SanitizeTopic(topic)
	if name == "" {
		return "", &ChannelError{Channel: ChannelFCM, Code: CodeInvalidArgument, Err: errors.New("empty topic")}
	}

	message := buildMessage(msg, msg.StringData())
	message.Topic = name

	response, err := p.client.Send(ctx, message)
	if err != nil {
		return "", classifyFCMError(err)
	}

	p.logger.Info("FCM topic broadcast sent",
		zap.String("topic", name),
		zap.String("message_id", response),
	)
	return response, nil
}

// TopicResult is the outcome of a topic subscription change
type TopicResult struct {
	Topic        string `json:"topic"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Error        string `json:"error,omitempty"`
}

// SubscribeToTopic subscribes a device token to a topic
func (p *PushChannel) SubscribeToTopic(ctx context.Context, token, topic string) (*TopicResult, error) {
	return p.manageTopic(ctx, token, topic, p.client.SubscribeToTopic)
}

// UnsubscribeFromTopic removes a device token from a topic
func (p *PushChannel) UnsubscribeFromTopic(ctx context.Context, token, topic string) (*TopicResult, error) {
	return p.manageTopic(ctx, token, topic, p.client.UnsubscribeFromTopic)
}

func (p *PushChannel) manageTopic(
	ctx context.Context,
	token, topic string,
	op func(context.Context, []string, string) (*messaging.TopicManagementResponse, error),
) (*TopicResult, error) {
	if token == "" {
		return nil, &ChannelError{Channel: ChannelFCM, Code: CodeInvalidToken, Err: errors.New("token is required")}
	}
	name := SanitizeTopic(topic)
	if name == "" {
		return nil, &ChannelError{Channel: ChannelFCM, Code: CodeInvalidArgument, Err: errors.New("empty topic")}
	}

	resp, err := op(ctx, []string{token}, name)
	if err != nil {
		return nil, classifyFCMError(err)
	}

	result := &TopicResult{Topic: name, SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}
	if len(resp.Errors) > 0 && resp.Errors[0] != nil {
		result.Error = resp.Errors[0].Reason
	}
	return result, nil
}

func buildMessage(msg Message, data map[string]string) *messaging.Message {
	msgType := msg.Type()
	style := StyleFor(msgType)

	category := msgType
	if category == "" {
		category = "default"
	}

	androidPriority := "normal"
	apnsPriority := "5"
	notifPriority := messaging.PriorityDefault
	switch style.Priority {
	case PriorityUrgent:
		androidPriority, apnsPriority, notifPriority = "high", "10", messaging.PriorityMax
	case PriorityHigh:
		androidPriority, apnsPriority, notifPriority = "high", "10", messaging.PriorityHigh
	}

	badge := 1
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				ChannelID:             style.ChannelID,
				Priority:              notifPriority,
				DefaultSound:          true,
				DefaultVibrateTimings: true,
				Icon:                  "ic_notification",
				Color:                 style.Color,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": apnsPriority,
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:    "default",
					Badge:    &badge,
					Category: category,
				},
			},
		},
	}
}

func classifyFCMError(err error) *ChannelError {
	code := CodeUnknown
	switch {
	case errorutils.IsUnavailable(err):
		code = CodeUnavailable
	case errorutils.IsInternal(err):
		code = CodeInternal
	case messaging.IsQuotaExceeded(err):
		code = CodeQuotaExceeded
	case messaging.IsUnregistered(err), messaging.IsSenderIDMismatch(err):
		code = CodeInvalidToken
	case errorutils.IsInvalidArgument(err):
		code = CodeInvalidArgument
	case IsTransient(err):
		code = CodeNetwork
	}
	return &ChannelError{Channel: ChannelFCM, Code: code, Err: err}
}

// SanitizeTopic lowercases a topic name and replaces every character
// outside [a-z0-9-_.~%] with a dash.
func SanitizeTopic(topic string) string {
	var b strings.Builder
	b.Grow(len(topic))
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '%':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
