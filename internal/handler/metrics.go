package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	wlRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	wlRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waveledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	wlSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveledger_submissions_total",
		Help: "Total record submissions by outcome.",
	}, []string{"result"})

	wlConfirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waveledger_confirmations_total",
		Help: "Total records confirmed.",
	})

	wlConfirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "waveledger_confirmation_latency_seconds",
		Help:    "Time from submission to confirmation.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	wlPendingRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "waveledger_pending_records",
		Help: "Records awaiting confirmation after the latest seal, by ledger address.",
	}, []string{"ledger"})

	wlDeploymentsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waveledger_deployments",
		Help: "Live ledger deployments.",
	})

	wlWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveledger_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result.",
	}, []string{"result"})

	wlIntegrityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waveledger_integrity_checks_total",
		Help: "Hash chain audits by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		wlRequestsTotal.WithLabelValues(method, path, status).Inc()
		wlRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// LedgerMetrics implements ledger.MetricsRecorder on the process-wide
// Prometheus registry for the ledger deployed at Address.
type LedgerMetrics struct {
	Address string
}

// NewLedgerMetrics is a deploy.MetricsFactory.
func NewLedgerMetrics(address string) ledger.MetricsRecorder {
	return LedgerMetrics{Address: address}
}

// RecordSubmit records a submission outcome.
func (LedgerMetrics) RecordSubmit(accepted bool) {
	if accepted {
		wlSubmissionsTotal.WithLabelValues("accepted").Inc()
	} else {
		wlSubmissionsTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordConfirm records a confirmation and the remaining backlog.
func (m LedgerMetrics) RecordConfirm(latency time.Duration, pending int) {
	wlConfirmationsTotal.Inc()
	wlConfirmationLatency.Observe(latency.Seconds())
	wlPendingRecords.WithLabelValues(m.Address).Set(float64(pending))
}

// Forget drops the ledger's pending series once it is torn down.
func (m LedgerMetrics) Forget() {
	wlPendingRecords.DeleteLabelValues(m.Address)
}

// SetDeploymentsGauge sets the live deployment gauge.
func SetDeploymentsGauge(n int) {
	wlDeploymentsTotal.Set(float64(n))
}

// RecordIntegrityCheck records the outcome of a hash chain audit.
func RecordIntegrityCheck(success bool) {
	if success {
		wlIntegrityChecks.WithLabelValues("ok").Inc()
	} else {
		wlIntegrityChecks.WithLabelValues("failed").Inc()
	}
}

// RecordWebhookDelivery records the outcome of a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		wlWebhookDeliveries.WithLabelValues("success").Inc()
	} else {
		wlWebhookDeliveries.WithLabelValues("failure").Inc()
	}
}
