package services

import "github.com/prometheus/client_golang/prometheus"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultFound   = "found"
	ResultMissing = "missing"
	ResultStale   = "stale"
)

// Metrics instruments the sync engine. A nil *Metrics records nothing.
type Metrics struct {
	persists        *prometheus.CounterVec
	hydrates        *prometheus.CounterVec
	coalesced       prometheus.Counter
	persistDuration prometheus.Histogram
}

// NewMetrics registers the sync collectors on registerer. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worktracker_sync_persist_total",
			Help: "Document writes by result.",
		}, []string{"result"}),
		hydrates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worktracker_sync_hydrate_total",
			Help: "Document loads on sign-in by result.",
		}, []string{"result"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worktracker_sync_coalesced_total",
			Help: "Pending snapshots superseded by a newer one before being written.",
		}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worktracker_sync_persist_duration_seconds",
			Help:    "Latency of a full document write.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	registerer.MustRegister(m.persists, m.hydrates, m.coalesced, m.persistDuration)
	return m
}

func (m *Metrics) observePersist(result string, seconds float64) {
	if m == nil {
		return
	}
	m.persists.WithLabelValues(result).Inc()
	m.persistDuration.Observe(seconds)
}

func (m *Metrics) observeHydrate(result string) {
	if m == nil {
		return
	}
	m.hydrates.WithLabelValues(result).Inc()
}

func (m *Metrics) observeCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}
