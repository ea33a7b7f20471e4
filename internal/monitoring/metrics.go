package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the alert fan-out service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DeliveryAttempts   *prometheus.CounterVec
	RecipientsNotified *prometheus.CounterVec
	RetryCount         *prometheus.CounterVec
	TopicBroadcasts    *prometheus.CounterVec
	ChannelDuration    *prometheus.HistogramVec
	FanOutDuration     *prometheus.HistogramVec
	AlertsCreated      *prometheus.CounterVec
	ListenerState      prometheus.Gauge
	ListenerReconnects prometheus.Counter
	ActiveConnections  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		DeliveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_delivery_attempts_total",
				Help: "Total number of push delivery attempts per channel and outcome",
			},
			[]string{"channel", "status"},
		),
		RecipientsNotified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_recipients_total",
				Help: "Total number of recipients processed by fan-out",
			},
			[]string{"result"},
		),
		RetryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_retries_total",
				Help: "Total number of push delivery retries",
			},
			[]string{"channel", "retry_reason"},
		),
		TopicBroadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_topic_broadcasts_total",
				Help: "Total number of topic broadcasts",
			},
			[]string{"reason", "status"},
		),
		ChannelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "push_channel_duration_seconds",
				Help:    "Time taken by a provider to accept a push",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		FanOutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_fanout_duration_seconds",
				Help:    "Time taken to fan an alert out to all recipients",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_created_total",
				Help: "Total number of alert records created",
			},
			[]string{"type", "severity"},
		),
		ListenerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alert_listener_listening",
				Help: "1 while the database change listener is listening",
			},
		),
		ListenerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_listener_reconnects_total",
				Help: "Total number of listener reconnect attempts",
			},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of in-flight HTTP requests",
			},
		),
	}

	reg.MustRegister(
		metrics.DeliveryAttempts,
		metrics.RecipientsNotified,
		metrics.RetryCount,
		metrics.TopicBroadcasts,
		metrics.ChannelDuration,
		metrics.FanOutDuration,
		metrics.AlertsCreated,
		metrics.ListenerState,
		metrics.ListenerReconnects,
		metrics.ActiveConnections,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		metrics.gatherer = g
	}

	return metrics
}

// RecordAttempt records one channel attempt
func (m *Metrics) RecordAttempt(channel, status string, seconds float64) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(channel, status).Inc()
	m.ChannelDuration.WithLabelValues(channel).Observe(seconds)
}

// RecordRecipient records the aggregate outcome for one recipient
func (m *Metrics) RecordRecipient(success bool) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "delivered"
	}
	m.RecipientsNotified.WithLabelValues(result).Inc()
}

// RecordRetry records a delivery retry
func (m *Metrics) RecordRetry(channel, reason string) {
	if m == nil {
		return
	}
	m.RetryCount.WithLabelValues(channel, reason).Inc()
}

// RecordBroadcast records a topic broadcast
func (m *Metrics) RecordBroadcast(reason, status string) {
	if m == nil {
		return
	}
	m.TopicBroadcasts.WithLabelValues(reason, status).Inc()
}

// RecordFanOut records how long one fan-out took
func (m *Metrics) RecordFanOut(source string, seconds float64) {
	if m == nil {
		return
	}
	m.FanOutDuration.WithLabelValues(source).Observe(seconds)
}

// RecordAlertCreated records a new alert record
func (m *Metrics) RecordAlertCreated(alertType, severity string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(alertType, severity).Inc()
}

// SetListening sets the listener state gauge
func (m *Metrics) SetListening(listening bool) {
	if m == nil {
		return
	}
	if listening {
		m.ListenerState.Set(1)
	} else {
		m.ListenerState.Set(0)
	}
}

// RecordReconnect records a listener reconnect attempt
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ListenerReconnects.Inc()
}

// IncrementActiveConnections increments active connections
func (m *Metrics) IncrementActiveConnections() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// DecrementActiveConnections decrements active connections
func (m *Metrics) DecrementActiveConnections() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
