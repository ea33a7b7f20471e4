package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// ExpoSentinelID is returned when the provider accepts a push without an id
const ExpoSentinelID = "expo-sent"

// ExpoChannel handles push notifications through the Expo push endpoint
type ExpoChannel struct {
	config config.ExpoConfig
	client *http.Client
	logger *zap.Logger
}

// NewExpoChannel creates a new Expo push channel
func NewExpoChannel(cfg config.ExpoConfig, logger *zap.Logger) *ExpoChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoChannel{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// ExpoRequest is the flat payload accepted by the Expo push endpoint
type ExpoRequest struct {
	To        string         `json:"to"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
	Sound     string         `json:"sound"`
	Priority  string         `json:"priority"`
	ChannelID string         `json:"channelId"`
}

// ExpoResponse represents the response from the Expo push endpoint
type ExpoResponse struct {
	Data *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data,omitempty"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Send sends a push notification to one Expo token
func (e *ExpoChannel) Send(ctx context.Context, token string, msg Message, to recipient.Recipient) (string, error) {
	payload := ExpoRequest{
		To:        token,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		Sound:     "default",
		Priority:  "high",
		ChannelID: StyleFor(msg.Type()).ChannelID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &ChannelError{Channel: ChannelExpo, Code: CodeInvalidArgument, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ChannelError{Channel: ChannelExpo, Code: CodeInvalidArgument, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.AccessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		code := CodeUnknown
		if IsTransient(err) {
			code = CodeNetwork
		}
		return "", &ChannelError{Channel: ChannelExpo, Code: code, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ChannelError{Channel: ChannelExpo, Code: CodeNetwork, Err: err}
	}

	var expoResp ExpoResponse
	if err := json.Unmarshal(raw, &expoResp); err != nil {
		return "", &ChannelError{
			Channel: ChannelExpo,
			Code:    codeForStatus(resp.StatusCode),
			Err:     fmt.Errorf("failed to parse Expo response (status %d): %w", resp.StatusCode, err),
		}
	}

	if len(expoResp.Errors) > 0 {
		return "", &ChannelError{Channel: ChannelExpo, Code: CodeProviderRejected, Err: errors.New(expoResp.Errors[0].Message)}
	}

	if resp.StatusCode >= 300 {
		return "", &ChannelError{
			Channel: ChannelExpo,
			Code:    codeForStatus(resp.StatusCode),
			Err:     fmt.Errorf("expo returned status %d", resp.StatusCode),
		}
	}

	id := ExpoSentinelID
	if expoResp.Data != nil && expoResp.Data.ID != "" {
		id = expoResp.Data.ID
	}

	e.logger.Debug("Expo push sent", zap.Int64("recipient_id", to.ID), zap.String("message_id", id))
	return id, nil
}

// GetChannelType returns the channel type
func (e *ExpoChannel) GetChannelType() string {
	return ChannelExpo
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusServiceUnavailable:
		return CodeServerUnavailable
	case status == http.StatusTooManyRequests:
		return CodeQuotaExceeded
	case status >= 500:
		return CodeInternal
	case status >= 400:
		return CodeInvalidArgument
	default:
		return CodeUnknown
	}
}
