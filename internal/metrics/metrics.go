// Package metrics exposes the workflow's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements the engine's node telemetry hooks on top of
// Prometheus collectors.
type Recorder struct {
	runs         *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	nodeFailures *prometheus.CounterVec
	nodeRetries  *prometheus.CounterVec
}

// NewRecorder registers the workflow collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minerva_runs_total",
				Help: "Research runs by terminal status.",
			},
			[]string{"status"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minerva_node_duration_seconds",
				Help:    "Wall time of one node execution, retries included.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"node"},
		),
		nodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minerva_node_failures_total",
				Help: "Node executions that exhausted their attempts.",
			},
			[]string{"node"},
		),
		nodeRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minerva_node_retries_total",
				Help: "Retry attempts per node.",
			},
			[]string{"node"},
		),
	}
	reg.MustRegister(r.runs, r.nodeDuration, r.nodeFailures, r.nodeRetries)
	return r
}

// ObserveNode records one completed node execution.
func (r *Recorder) ObserveNode(node string, duration time.Duration, success bool) {
	r.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
	if !success {
		r.nodeFailures.WithLabelValues(node).Inc()
	}
}

// NodeRetried counts one retry attempt.
func (r *Recorder) NodeRetried(node string) {
	r.nodeRetries.WithLabelValues(node).Inc()
}

// RunCompleted counts one finished run. status is "ok" or "error".
func (r *Recorder) RunCompleted(status string) {
	r.runs.WithLabelValues(status).Inc()
}
