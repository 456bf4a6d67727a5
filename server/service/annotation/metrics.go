package annotation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for annotation fetches.
type Metrics struct {
	requests *prometheus.CounterVec   // by source and outcome (ok, missing, error)
	duration *prometheus.HistogramVec // by source
	cacheHit prometheus.Counter
}

// NewMetrics creates annotation metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "annotation",
			Name:      "provider_requests_total",
			Help:      "Total number of annotation provider calls",
		}, []string{"source", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mutationmechanic",
			Subsystem: "annotation",
			Name:      "provider_duration_seconds",
			Help:      "Annotation provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"source"}),
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "annotation",
			Name:      "cache_hits_total",
			Help:      "Total number of annotation requests served from cache",
		}),
	}
	if registry == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.cacheHit} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordFetch(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHit.Inc()
}
