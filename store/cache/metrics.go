package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	tierFast    = "fast"
	tierDurable = "durable"
)

// Metrics holds Prometheus metrics for tiered cache operations.
type Metrics struct {
	hits          *prometheus.CounterVec // by tier
	misses        prometheus.Counter
	promotions    prometheus.Counter
	expirations   *prometheus.CounterVec // by tier
	writeFailures *prometheus.CounterVec // by tier
	fastSize      prometheus.Gauge
}

// NewMetrics creates cache metrics and registers them with registry.
// A nil registry yields unregistered collectors.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of lookups that missed both tiers",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "promotions_total",
			Help:      "Total number of durable hits copied into the fast tier",
		}),
		expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "expirations_total",
			Help:      "Total number of expired entries removed on read",
		}, []string{"tier"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "write_failures_total",
			Help:      "Total number of failed tier writes",
		}, []string{"tier"}),
		fastSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mutationmechanic",
			Subsystem: "cache",
			Name:      "fast_size",
			Help:      "Current number of entries in the fast tier",
		}),
	}
	if registry == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.promotions, m.expirations, m.writeFailures, m.fastSize} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordHit(tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(tier).Inc()
}

func (m *Metrics) recordMiss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *Metrics) recordPromotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) recordExpiration(tier string) {
	if m == nil {
		return
	}
	m.expirations.WithLabelValues(tier).Inc()
}

func (m *Metrics) recordExpirations(tier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expirations.WithLabelValues(tier).Add(float64(n))
}

func (m *Metrics) recordWriteFailure(tier string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(tier).Inc()
}

func (m *Metrics) updateFastSize(size int) {
	if m == nil {
		return
	}
	m.fastSize.Set(float64(size))
}
