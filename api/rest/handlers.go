package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/alert"
	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/monitoring"
	"github.com/alexnthnz/alert-fanout/internal/notification"
	"github.com/alexnthnz/alert-fanout/internal/queue"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// AlertService produces and transitions alerts
type AlertService interface {
	Create(ctx context.Context, req alert.CreateRequest) (*alert.Outcome, error)
	Get(ctx context.Context, id int64) (*alert.Record, error)
	Acknowledge(ctx context.Context, id, actor int64) (*alert.Record, error)
	Resolve(ctx context.Context, id, actor int64) (*alert.Record, error)
	ZoneBreach(ctx context.Context, req alert.ZoneBreachRequest) (*alert.Outcome, error)
	Emergency(ctx context.Context, req alert.EmergencyRequest) (*alert.Outcome, error)
}

// NotificationService sends per-user notifications
type NotificationService interface {
	NotifyAssignment(ctx context.Context, req notification.AssignmentRequest) (*notification.AssignmentResult, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]notification.Record, error)
}

// TopicManager subscribes device tokens to broadcast topics
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, token, topic string) (*channels.TopicResult, error)
	UnsubscribeFromTopic(ctx context.Context, token, topic string) (*channels.TopicResult, error)
}

// CommandQueue hands alert work to the push service
type CommandQueue interface {
	PublishAlertCommand(ctx context.Context, kind string, payload any) (string, error)
}

// Handler holds dependencies for REST API handlers
type Handler struct {
	alerts        AlertService
	notifications NotificationService
	topics        TopicManager
	commands      CommandQueue
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	validator     *validator.Validate
}

// NewHandler creates a new REST API handler
func NewHandler(
	alerts AlertService,
	notifications NotificationService,
	topics TopicManager,
	commands CommandQueue,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		alerts:        alerts,
		notifications: notifications,
		topics:        topics,
		commands:      commands,
		metrics:       metrics,
		logger:        logger,
		validator:     validator.New(),
	}
}

// ActorRequest names the user performing a status change
type ActorRequest struct {
	UserID int64 `json:"userId" validate:"required"`
}

// TopicRequest is the body of topic subscribe and unsubscribe
type TopicRequest struct {
	Token string `json:"token" validate:"required"`
	Topic string `json:"topic" validate:"required"`
}

// CommandResponse acknowledges a queued request
type CommandResponse struct {
	CommandID string `json:"commandId"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// CreateAlert handles POST /alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alert.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.alerts.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create alert", err)
		return
	}

	h.logger.Info("Alert created",
		zap.Int64("id", out.Record.ID),
		zap.String("type", out.Record.Type),
		zap.Int("delivered", out.Delivery.Delivered),
		zap.String("request_id", requestID(r)),
	)
	h.writeJSON(w, http.StatusCreated, out)
}

// GetAlert handles GET /alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to retrieve alert", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// AcknowledgeAlert handles POST /alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alerts.Acknowledge)
}

// ResolveAlert handles POST /alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alerts.Resolve)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id, actor int64) (*alert.Record, error),
) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := apply(r.Context(), id, req.UserID)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update alert", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ZoneBreach handles POST /alerts/zone-breach
func (h *Handler) ZoneBreach(w http.ResponseWriter, r *http.Request) {
	var req alert.ZoneBreachRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.enqueue(w, r, queue.CommandZoneBreach, req) {
		return
	}

	out, err := h.alerts.ZoneBreach(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to send zone breach alert", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// Emergency handles POST /alerts/emergency
func (h *Handler) Emergency(w http.ResponseWriter, r *http.Request) {
	var req alert.EmergencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.enqueue(w, r, queue.CommandEmergency, req) {
		return
	}

	out, err := h.alerts.Emergency(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to send emergency alert", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// NotifyAssignment handles POST /notifications/assignment
func (h *Handler) NotifyAssignment(w http.ResponseWriter, r *http.Request) {
	var req notification.AssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.enqueue(w, r, queue.CommandAssignment, req) {
		return
	}

	res, err := h.notifications.NotifyAssignment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to send assignment notification", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// enqueue publishes a validated request as a command when the caller asks
// for ?async=true and answers 202 with the command id. It reports whether
// the request was handled.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, kind string, payload any) bool {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); !async {
		return false
	}
	if h.commands == nil {
		h.writeErrorResponse(w, r, "Asynchronous processing is not available", http.StatusServiceUnavailable)
		return true
	}

	id, err := h.commands.PublishAlertCommand(r.Context(), kind, payload)
	if err != nil {
		h.logger.Error("Failed to enqueue command",
			zap.String("kind", kind),
			zap.Error(err),
			zap.String("request_id", requestID(r)),
		)
		h.writeErrorResponse(w, r, "Failed to enqueue command", http.StatusInternalServerError)
		return true
	}

	h.logger.Info("Command queued", zap.String("kind", kind), zap.String("command_id", id))
	h.writeJSON(w, http.StatusAccepted, CommandResponse{CommandID: id, Kind: kind, Status: "queued"})
	return true
}

// ListNotifications handles GET /users/{id}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeErrorResponse(w, r, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.notifications.ListForUser(r.Context(), id, limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list notifications", err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// SubscribeTopic handles POST /topics/subscribe
func (h *Handler) SubscribeTopic(w http.ResponseWriter, r *http.Request) {
	h.manageTopic(w, r, h.topics.SubscribeToTopic)
}

// UnsubscribeTopic handles POST /topics/unsubscribe
func (h *Handler) UnsubscribeTopic(w http.ResponseWriter, r *http.Request) {
	h.manageTopic(w, r, h.topics.UnsubscribeFromTopic)
}

func (h *Handler) manageTopic(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, token, topic string) (*channels.TopicResult, error),
) {
	var req TopicRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := apply(r.Context(), req.Token, req.Topic)
	if err != nil {
		var chErr *channels.ChannelError
		if errors.As(err, &chErr) && chErr.Code == channels.CodeInvalidArgument {
			h.writeErrorResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeServiceError(w, r, "Failed to manage topic subscription", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "alert-api",
	}
	h.writeJSON(w, http.StatusOK, health)
}

// Metrics handles GET /metrics (Prometheus metrics)
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("Failed to decode request", zap.Error(err), zap.String("request_id", requestID(r)))
		h.writeErrorResponse(w, r, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.writeErrorResponse(w, r, fmt.Sprintf("Validation error: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, r, "id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeServiceError maps service errors to status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case errors.Is(err, alert.ErrValidation), errors.Is(err, notification.ErrValidation):
		h.writeErrorResponse(w, r, err.Error(), http.StatusBadRequest)
	case errors.Is(err, alert.ErrNotFound), errors.Is(err, recipient.ErrNotFound):
		h.writeErrorResponse(w, r, err.Error(), http.StatusNotFound)
	case errors.Is(err, alert.ErrInvalidTransition):
		h.writeErrorResponse(w, r, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(message, zap.Error(err), zap.String("request_id", requestID(r)))
		h.writeErrorResponse(w, r, message, http.StatusInternalServerError)
	}
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: requestID(r),
	}
	h.writeJSON(w, statusCode, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// SetupRoutes sets up all REST API routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/alerts", h.CreateAlert).Methods("POST", "OPTIONS")
	api.HandleFunc("/alerts/zone-breach", h.ZoneBreach).Methods("POST", "OPTIONS")
	api.HandleFunc("/alerts/emergency", h.Emergency).Methods("POST", "OPTIONS")
	api.HandleFunc("/alerts/{id:[0-9]+}", h.GetAlert).Methods("GET", "OPTIONS")
	api.HandleFunc("/alerts/{id:[0-9]+}/acknowledge", h.AcknowledgeAlert).Methods("POST", "OPTIONS")
	api.HandleFunc("/alerts/{id:[0-9]+}/resolve", h.ResolveAlert).Methods("POST", "OPTIONS")
	api.HandleFunc("/notifications/assignment", h.NotifyAssignment).Methods("POST", "OPTIONS")
	api.HandleFunc("/users/{id:[0-9]+}/notifications", h.ListNotifications).Methods("GET", "OPTIONS")
	api.HandleFunc("/topics/subscribe", h.SubscribeTopic).Methods("POST", "OPTIONS")
	api.HandleFunc("/topics/unsubscribe", h.UnsubscribeTopic).Methods("POST", "OPTIONS")

	// Health and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/metrics", h.Metrics).Methods("GET")

	// Add middleware
	router.Use(h.requestIDMiddleware)
	router.Use(h.loggingMiddleware)
	router.Use(h.corsMiddleware)

	return router
}

type ctxKey struct{}

const requestIDHeader = "X-Request-ID"

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware propagates or assigns a request id
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.metrics.IncrementActiveConnections()
		defer h.metrics.DecrementActiveConnections()

		// Create a response recorder to capture status code
		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		h.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", requestID(r)),
		)
	})
}

// corsMiddleware adds CORS headers
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder wraps http.ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
