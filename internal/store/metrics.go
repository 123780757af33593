package store

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Store's cache-hit/miss and refresh counters. A nil
// *Metrics (the zero value of Config.Metrics) is valid: every method is a
// no-op, so callers that don't care about observability pay nothing.
type Metrics struct {
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	refreshTotal *prometheus.CounterVec
}

// NewMetrics registers the Store's counters against reg and returns a
// Metrics ready to pass via Config.Metrics. Registering the same Metrics
// against multiple Stores double-counts; callers wanting per-Store
// metrics should construct one Metrics per Store.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_credential_cache_hits_total",
			Help: "Credential reads served from the in-memory cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_credential_cache_misses_total",
			Help: "Credential reads that required a storage backend load.",
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_credential_refresh_total",
			Help: "Provider refresh invocations, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.refreshTotal)
	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) refreshed(outcome string) {
	if m != nil {
		m.refreshTotal.WithLabelValues(outcome).Inc()
	}
}
