package interceptor

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// chainMetrics contains Prometheus metrics for the execution chain.
type chainMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	asyncSuspensions prometheus.Counter
}

var (
	chainMetricsInstance *chainMetrics
	chainMetricsOnce     sync.Once
)

// getChainMetrics returns the singleton chain metrics instance.
func getChainMetrics() *chainMetrics {
	chainMetricsOnce.Do(func() {
		chainMetricsInstance = &chainMetrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "dispatch",
					Subsystem: "chain",
					Name:      "requests_total",
					Help:      "Total number of dispatched requests",
				},
				[]string{"handler", "outcome"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "dispatch",
					Subsystem: "chain",
					Name:      "request_duration_seconds",
					Help:      "Request duration through the full chain",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"handler"},
			),
			requestsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "dispatch",
					Subsystem: "chain",
					Name:      "requests_in_flight",
					Help:      "Number of requests currently in the chain",
				},
			),
			asyncSuspensions: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "dispatch",
					Subsystem: "chain",
					Name:      "async_suspensions_total",
					Help:      "Total number of requests suspended for async completion",
				},
			),
		}
	})
	return chainMetricsInstance
}

// Metrics records per-handler request metrics. Duration is measured from
// PreHandle to AfterCompletion, so it covers the whole chain including
// asynchronous suspensions.
type Metrics struct {
	Base
	metrics *chainMetrics
}

// NewMetrics creates the metrics interceptor.
func NewMetrics() *Metrics {
	return &Metrics{metrics: getChainMetrics()}
}

// PreHandle marks the request in flight.
func (ic *Metrics) PreHandle(_ http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef) (*http.Request, bool, error) {
	ic.metrics.requestsInFlight.Inc()

	if _, ok := util.StartTimeFromContext(r.Context()); ok {
		return nil, true, nil
	}
	ctx := util.ContextWithStartTime(r.Context(), time.Now())
	return r.WithContext(ctx), true, nil
}

// AfterCompletion records the outcome and duration.
func (ic *Metrics) AfterCompletion(_ http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef, err error) error {
	ic.metrics.requestsInFlight.Dec()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ic.metrics.requestsTotal.WithLabelValues(h.String(), outcome).Inc()

	if start, ok := util.StartTimeFromContext(r.Context()); ok {
		ic.metrics.requestDuration.WithLabelValues(h.String()).Observe(time.Since(start).Seconds())
	}

	return nil
}

// AfterConcurrentHandlingStarted counts the suspension.
func (ic *Metrics) AfterConcurrentHandlingStarted(_ http.ResponseWriter, _ *http.Request, _ *dispatch.HandlerRef) {
	ic.metrics.asyncSuspensions.Inc()
}
