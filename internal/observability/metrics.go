package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	deliveriesEnqueued  *prometheus.CounterVec
	deliveryOutcomes    *prometheus.CounterVec
	webhookSendDuration *prometheus.HistogramVec
	sendsInflight       prometheus.Gauge
	retryScheduledTotal prometheus.Counter
	claimConflictsTotal prometheus.Counter
	sendsThrottledTotal prometheus.Counter
	staleClaimsReleased prometheus.Counter
}

const metricsNamespace = "clicknps_webhooks"

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deliveries_enqueued_total",
				Help:      "Total number of delivery records created, by ingestion source.",
			},
			[]string{"source"},
		),
		deliveryOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "delivery_attempts_total",
				Help:      "Total number of finished delivery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		webhookSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "send_duration_seconds",
				Help:      "Outbound webhook call duration in seconds grouped by result.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"result"},
		),
		sendsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sends_inflight",
				Help:      "Current number of in-flight webhook sends.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries returned to pending with a backoff delay.",
			},
		),
		claimConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "claim_conflicts_total",
				Help:      "Total number of claims lost to another scheduler pass.",
			},
		),
		sendsThrottledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sends_throttled_total",
				Help:      "Total number of claims released because the business rate limit was hit.",
			},
		),
		staleClaimsReleased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stale_claims_released_total",
				Help:      "Total number of processing records released after the claim lease expired.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesEnqueued,
		m.deliveryOutcomes,
		m.webhookSendDuration,
		m.sendsInflight,
		m.retryScheduledTotal,
		m.claimConflictsTotal,
		m.sendsThrottledTotal,
		m.staleClaimsReleased,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEnqueued(source string) {
	if m == nil {
		return
	}
	m.deliveriesEnqueued.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDeliveryOutcome counts a finished attempt as delivered, retry or failed.
func (m *Metrics) IncDeliveryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.deliveryOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveSendDuration(result string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.webhookSendDuration.WithLabelValues(normalizeLabel(result)).Observe(seconds)
}

func (m *Metrics) IncSendsInFlight() {
	if m == nil {
		return
	}
	m.sendsInflight.Inc()
}

func (m *Metrics) DecSendsInFlight() {
	if m == nil {
		return
	}
	m.sendsInflight.Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflictsTotal.Inc()
}

func (m *Metrics) IncThrottled() {
	if m == nil {
		return
	}
	m.sendsThrottledTotal.Inc()
}

func (m *Metrics) AddStaleClaimsReleased(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleClaimsReleased.Add(float64(n))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
