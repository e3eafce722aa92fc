package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Webhook Processing Metrics
	webhooksReceivedTotal   *prometheus.CounterVec
	utterancesSegmented     *prometheus.CounterVec
	webhookPipelineDuration *prometheus.HistogramVec

	// Intent Extraction Metrics
	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec

	// Execution Metrics
	intentsExecutedTotal   *prometheus.CounterVec
	settlementWaitDuration *prometheus.HistogramVec

	// Custody API Metrics
	custodyCallsTotal   *prometheus.CounterVec
	custodyCallDuration *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Webhook Processing Metrics
		webhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhooks_received_total",
				Help: "Total number of transcript webhooks received by outcome",
			},
			[]string{"outcome"},
		),
		utterancesSegmented: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utterances_segmented_total",
				Help: "Total number of command utterances extracted from transcripts",
			},
			[]string{"kind"},
		),
		webhookPipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webhook_pipeline_duration_seconds",
				Help:    "End-to-end duration of webhook processing in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		// Intent Extraction Metrics
		extractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intent_extractions_total",
				Help: "Total number of intent extraction attempts",
			},
			[]string{"kind", "status"},
		),
		extractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intent_extraction_duration_seconds",
				Help:    "Duration of model extraction calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"kind"},
		),

		// Execution Metrics
		intentsExecutedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intents_executed_total",
				Help: "Total number of executed intents by kind and terminal state",
			},
			[]string{"kind", "state"},
		),
		settlementWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_wait_duration_seconds",
				Help:    "Time spent waiting for custody operations to settle",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			nil,
		),

		// Custody API Metrics
		custodyCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custody_api_calls_total",
				Help: "Total number of custody provider API calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		custodyCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "custody_api_call_duration_seconds",
				Help:    "Duration of custody provider API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Webhook processing metric helpers

// RecordWebhookReceived records a processed webhook with its outcome and
// end-to-end duration.
func (m *Metrics) RecordWebhookReceived(outcome string, duration float64) {
	m.webhooksReceivedTotal.WithLabelValues(outcome).Inc()
	m.webhookPipelineDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordUtterancesSegmented records utterances found in a transcript.
func (m *Metrics) RecordUtterancesSegmented(kind string, count int) {
	m.utterancesSegmented.WithLabelValues(kind).Add(float64(count))
}

// Intent extraction metric helpers

// RecordExtraction records a model extraction attempt with duration.
func (m *Metrics) RecordExtraction(kind, status string, duration float64) {
	m.extractionsTotal.WithLabelValues(kind, status).Inc()
	m.extractionDuration.WithLabelValues(kind).Observe(duration)
}

// Execution metric helpers

// RecordIntentExecuted records an intent reaching a terminal state.
func (m *Metrics) RecordIntentExecuted(kind, state string) {
	m.intentsExecutedTotal.WithLabelValues(kind, state).Inc()
}

// RecordSettlementWait records time spent waiting for settlement.
func (m *Metrics) RecordSettlementWait(duration float64) {
	m.settlementWaitDuration.WithLabelValues().Observe(duration)
}

// Custody API metric helpers

// RecordCustodyCall records a custody provider API call with duration.
func (m *Metrics) RecordCustodyCall(endpoint, status string, duration float64) {
	m.custodyCallsTotal.WithLabelValues(endpoint, status).Inc()
	m.custodyCallDuration.WithLabelValues(endpoint).Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
