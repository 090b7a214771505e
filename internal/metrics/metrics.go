// Package metrics provides Prometheus metrics for the outline store
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outlinestore"

// Metrics holds all Prometheus metrics for the outline store
type Metrics struct {
	// Transport metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Record store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreRecordsTotal      prometheus.Gauge

	// Outline edit metrics
	OutlineEditsTotal   *prometheus.CounterVec
	WatchEventsTotal    *prometheus.CounterVec
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg. Passing nil
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	m := &Metrics{ServerStartTime: time.Now()}

	m.HTTPRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of REST requests",
	}, []string{"route", "status"})

	m.HTTPRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of REST requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	m.HTTPRequestsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Number of REST requests currently being processed",
	})

	m.GrpcRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grpc_requests_total",
		Help:      "Total number of gRPC requests",
	}, []string{"method", "code"})

	m.GrpcRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "grpc_request_duration_seconds",
		Help:      "Duration of gRPC requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	m.GrpcRequestsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "grpc_requests_in_flight",
		Help:      "Number of gRPC requests currently being processed",
	})

	m.StoreOperationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Total number of record store operations",
	}, []string{"operation", "status"})

	m.StoreOperationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_duration_seconds",
		Help:      "Duration of record store operations in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	m.StoreRecordsTotal = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_records_total",
		Help:      "Number of records in the store, for backends that can count",
	})

	m.OutlineEditsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outline_edits_total",
		Help:      "Outline operations by kind and outcome",
	}, []string{"op", "outcome"})

	m.WatchEventsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watch_events_total",
		Help:      "External node file changes seen by the watcher",
	}, []string{"kind"})

	m.ServerUptimeSeconds = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_uptime_seconds",
		Help:      "Server uptime in seconds",
	})

	return m
}

// RunUptime updates the uptime gauge every interval until ctx is done.
func (m *Metrics) RunUptime(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RecordHTTPRequest records a REST request with its status code class
func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordGrpcRequest records a gRPC request with its status code
func (m *Metrics) RecordGrpcRequest(method, code string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordStoreOperation records a record store call
func (m *Metrics) RecordStoreOperation(operation, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEdit counts one outline operation
func (m *Metrics) RecordEdit(op, outcome string) {
	m.OutlineEditsTotal.WithLabelValues(op, outcome).Inc()
}
