package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder publishes operation counters and latency histograms to a
// Prometheus registerer.
type PrometheusRecorder struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the engine metrics with reg and returns the
// recorder. Registration panics on duplicate metric names, so construct at
// most one recorder per registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "operations_total",
			Help:      "Engine operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency by name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(r.results, r.durations)
	return r
}

// Observe implements Recorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.results.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
