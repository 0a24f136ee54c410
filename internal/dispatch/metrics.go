package dispatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcome label values.
const (
	outcomeDirect    = "direct"
	outcomeScan      = "scan"
	outcomeNone      = "none"
	outcomeAmbiguous = "ambiguous"
	outcomePreflight = "preflight_ambiguous"
)

// dispatchMetrics contains Prometheus metrics for mapping resolution.
type dispatchMetrics struct {
	resolveTotal    *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	mappings        prometheus.Gauge
}

var (
	dispatchMetricsInstance *dispatchMetrics
	dispatchMetricsOnce     sync.Once
)

// getDispatchMetrics returns the singleton dispatch metrics instance.
func getDispatchMetrics() *dispatchMetrics {
	dispatchMetricsOnce.Do(func() {
		dispatchMetricsInstance = &dispatchMetrics{
			resolveTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "dispatch",
					Subsystem: "mapping",
					Name:      "resolve_total",
					Help:      "Total number of handler resolutions by outcome",
				},
				[]string{"outcome"},
			),
			resolveDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "dispatch",
					Subsystem: "mapping",
					Name:      "resolve_duration_seconds",
					Help:      "Time spent resolving a request to a handler",
					Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
				},
			),
			mappings: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "dispatch",
					Subsystem: "mapping",
					Name:      "registered_mappings",
					Help:      "Current number of registered mappings",
				},
			),
		}
	})
	return dispatchMetricsInstance
}
