package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Unfurl Pipeline Metrics
	UnfurlsProducedTotal *prometheus.CounterVec
	UnfurlsFailedTotal   *prometheus.CounterVec
	QueueBatchSize       prometheus.Histogram
	QueueBatchDuration   prometheus.Histogram
	AuthPromptsTotal     *prometheus.CounterVec
	DeferredEventsTotal  *prometheus.CounterVec

	// Token Lifecycle Metrics
	TokenRefreshTotal *prometheus.CounterVec
	TokenResetsTotal  *prometheus.CounterVec

	// OAuth Flow Metrics
	OAuthFlowsTotal     *prometheus.CounterVec
	SessionsSweptTotal  prometheus.Counter
	ExternalAPIDuration *prometheus.HistogramVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// GetMetrics returns the initialized Prometheus metrics, nil before Init
func GetMetrics() *Metrics {
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		UnfurlsProducedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurls_produced_total",
				Help: "Total number of unfurls posted to the target platform",
			},
			[]string{"direction"},
		),
		UnfurlsFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurls_failed_total",
				Help: "Total number of unfurl attempts that failed",
			},
			[]string{"direction", "reason"},
		),
		QueueBatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unfurl_queue_batch_size",
				Help:    "Number of items fetched per unfurl queue poll",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		QueueBatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unfurl_queue_batch_duration_seconds",
				Help:    "Time taken to process one unfurl queue batch",
				Buckets: prometheus.DefBuckets,
			},
		),
		AuthPromptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurl_auth_prompts_total",
				Help: "Total number of authentication prompts sent to users",
			},
			[]string{"direction"},
		),
		DeferredEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deferred_events_total",
				Help: "Deferred link events by action",
			},
			[]string{"action"}, // parked, replayed
		),
		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_refresh_total",
				Help: "Total number of access token refresh attempts",
			},
			[]string{"platform", "result"},
		),
		TokenResetsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_resets_total",
				Help: "Total number of credentials dropped on terminal provider errors",
			},
			[]string{"platform"},
		),
		OAuthFlowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_flows_total",
				Help: "OAuth flows by platform and result",
			},
			[]string{"platform", "result"}, // started, completed, failed
		),
		SessionsSweptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oauth_sessions_swept_total",
				Help: "Total number of expired OAuth sessions removed by the sweeper",
			},
		),
		ExternalAPIDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "Duration of calls to the Slack and Space APIs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform", "method"},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
	}
}

const (
	resultSuccess = "success"
	resultError   = "error"
)

func (m *Metrics) RecordUnfurlsProduced(direction string, count int) {
	m.UnfurlsProducedTotal.WithLabelValues(direction).Add(float64(count))
}

func (m *Metrics) RecordUnfurlFailed(direction, reason string) {
	m.UnfurlsFailedTotal.WithLabelValues(direction, reason).Inc()
}

func (m *Metrics) RecordQueueBatch(size int, duration time.Duration) {
	m.QueueBatchSize.Observe(float64(size))
	m.QueueBatchDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordAuthPrompt(direction string) {
	m.AuthPromptsTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) RecordDeferredEvent(action string) {
	m.DeferredEventsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordTokenRefresh(platform string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokenRefreshTotal.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) RecordTokenReset(platform string) {
	m.TokenResetsTotal.WithLabelValues(platform).Inc()
}

func (m *Metrics) RecordOAuthFlow(platform, result string) {
	m.OAuthFlowsTotal.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) RecordSessionsSwept(count int) {
	m.SessionsSweptTotal.Add(float64(count))
}

func (m *Metrics) RecordExternalAPICall(platform, method string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(platform, method).Observe(duration.Seconds())
}

func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
