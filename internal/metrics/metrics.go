// Package metrics provides Prometheus metrics for the HolySheet daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes recorded per payload.
const (
	OutcomeResponded = "responded"
	OutcomeDropped   = "dropped"
	OutcomeError     = "error"
)

var (
	// Socket metrics
	socketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holysheet_socket_connections_total",
			Help: "Total number of accepted socket connections",
		},
	)

	socketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holysheet_socket_connections_active",
			Help: "Number of currently open socket connections",
		},
	)

	socketLinesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holysheet_socket_lines_received_total",
			Help: "Total request lines read from socket connections",
		},
	)

	socketDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holysheet_socket_dispatches_total",
			Help: "Total dispatched payloads by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	socketDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holysheet_socket_dispatch_duration_seconds",
			Help:    "Payload dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// Remote store metrics
	driveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holysheet_drive_requests_total",
			Help: "Total remote store requests",
		},
		[]string{"operation", "status"},
	)

	driveRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holysheet_drive_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConnectionOpened records an accepted socket connection.
func RecordConnectionOpened() {
	socketConnectionsTotal.Inc()
	socketConnectionsActive.Inc()
}

// RecordConnectionClosed records a socket connection ending.
func RecordConnectionClosed() {
	socketConnectionsActive.Dec()
}

// RecordLineReceived records one request line read from a connection.
func RecordLineReceived() {
	socketLinesReceived.Inc()
}

// RecordDispatch records a dispatched payload and its outcome.
func RecordDispatch(payloadType, outcome string, duration time.Duration) {
	socketDispatchesTotal.WithLabelValues(payloadType, outcome).Inc()
	socketDispatchDuration.WithLabelValues(payloadType).Observe(duration.Seconds())
}

// RecordDriveRequest records a remote store request.
func RecordDriveRequest(operation string, duration time.Duration, success bool) {
	driveRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	driveRequestsTotal.WithLabelValues(operation, status).Inc()
}
