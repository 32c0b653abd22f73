package timewarrior

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics holds optional Prometheus collectors for Store activity.
// A nil *StoreMetrics on Options disables instrumentation entirely; bump
// is a no-op in that case.
type StoreMetrics struct {
	Additions    prometheus.Counter
	Deletions    prometheus.Counter
	TagsTracked  prometheus.Gauge
	DatafileLoad prometheus.Counter
}

// NewStoreMetrics builds a StoreMetrics and registers its collectors with
// reg. Callers that don't want metrics should simply leave Options.Metrics
// nil rather than calling this.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		Additions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarrior_store_additions_total",
			Help: "Total number of intervals added to the store.",
		}),
		Deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarrior_store_deletions_total",
			Help: "Total number of intervals removed from the store.",
		}),
		TagsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timewarrior_store_tags_tracked",
			Help: "Current number of distinct tags known to the tag index.",
		}),
		DatafileLoad: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarrior_store_datafile_loads_total",
			Help: "Total number of Datafiles lazily loaded from disk.",
		}),
	}
	reg.MustRegister(m.Additions, m.Deletions, m.TagsTracked, m.DatafileLoad)
	return m
}
