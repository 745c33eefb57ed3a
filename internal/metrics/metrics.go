// Package metrics records gateway operation counts and latencies. The
// teacher repo pulls in prometheus/client_golang only as miniredis's
// transitive dependency and never instruments anything itself; this
// package is where the gateway gives that dependency an actual home,
// the way SPEC_FULL.md's domain-stack section calls for wiring every
// plausible library from the pack rather than leaving it inert.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/corvidlabs/aigateway/internal/apierr"
)

// Recorder is the interface the dispatcher and server depend on, so
// tests can substitute a no-op or counting fake without touching a real
// Prometheus registry.
type Recorder interface {
	ObserveDispatch(providerName, model string, streaming bool, duration time.Duration, err error)
	IncActiveStreams(delta int)
}

// PromRecorder is the production Recorder, backed by Prometheus
// collectors registered against a caller-supplied registry.
type PromRecorder struct {
	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	activeStreams prometheus.Gauge

	activeStreamCount atomic.Int64
}

// NewPromRecorder builds and registers the gateway's metric collectors
// against reg.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	r := &PromRecorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatch_requests_total",
			Help: "Total number of dispatched chat requests by provider, model, and mode.",
		}, []string{"provider", "model", "streaming"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatch_errors_total",
			Help: "Total number of dispatch failures by provider and error kind.",
		}, []string{"provider", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_dispatch_duration_seconds",
			Help:    "Dispatch latency in seconds by provider and mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "streaming"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_streams",
			Help: "Number of streaming responses currently being relayed to clients.",
		}),
	}
	reg.MustRegister(r.requests, r.errors, r.latency, r.activeStreams)
	return r
}

func streamLabel(streaming bool) string {
	if streaming {
		return "true"
	}
	return "false"
}

// ObserveDispatch implements Recorder.
func (r *PromRecorder) ObserveDispatch(providerName, model string, streaming bool, duration time.Duration, err error) {
	label := streamLabel(streaming)
	r.requests.WithLabelValues(providerName, model, label).Inc()
	r.latency.WithLabelValues(providerName, label).Observe(duration.Seconds())
	if err != nil {
		r.errors.WithLabelValues(providerName, errKind(err)).Inc()
	}
}

// IncActiveStreams implements Recorder.
func (r *PromRecorder) IncActiveStreams(delta int) {
	r.activeStreamCount.Add(int64(delta))
	r.activeStreams.Set(float64(r.activeStreamCount.Load()))
}

func errKind(err error) string {
	if e, ok := apierr.As(err); ok {
		return string(e.Kind)
	}
	return "unknown"
}
