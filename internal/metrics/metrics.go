// Package metrics exports service operation metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetcore"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder counts and times service operations. It satisfies
// core.MetricsRecorder.
type Recorder struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewRecorder registers the operation collectors on reg. A nil reg uses a
// fresh registry, which keeps tests independent of the global one.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of asset service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Asset service operations by outcome.",
		}, []string{"operation", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(r.duration, r.total)
	return r
}

// Observe records one finished operation.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	r.duration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	r.total.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
