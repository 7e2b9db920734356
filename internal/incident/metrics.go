package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the ingest engine.
type Metrics struct {
	IngestsTotal       *prometheus.CounterVec
	IncidentsCreated   *prometheus.CounterVec
	BatchEvents        prometheus.Histogram
	BatchSignatures    prometheus.Histogram
	BatchFailedGroups  prometheus.Counter
	VersionConflicts   prometheus.Counter
	RejectedEvents     prometheus.Counter
	EnrichmentsTotal   *prometheus.CounterVec
	EnrichmentDuration prometheus.Histogram
	NotifyFailures     prometheus.Counter
}

// NewMetrics registers and returns ingest metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ingests_total",
			Help: "Total ingested events by outcome.",
		}, []string{"outcome"}),
		IncidentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_incidents_created_total",
			Help: "Incidents created, split by new vs regression version.",
		}, []string{"kind"}),
		BatchEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_batch_events",
			Help:    "Events per ingest batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. ~2048
		}),
		BatchSignatures: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_batch_signatures",
			Help:    "Distinct signatures per ingest batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. ~512
		}),
		BatchFailedGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_batch_failed_groups_total",
			Help: "Signature groups dropped from a batch due to store errors.",
		}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_version_conflicts_total",
			Help: "Create conflicts on (signature, version) that triggered a re-read.",
		}),
		RejectedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_rejected_events_total",
			Help: "Events rejected for missing required fields.",
		}),
		EnrichmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_enrichments_total",
			Help: "Enrichment attempts by result.",
		}, []string{"result"}),
		EnrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_enrichment_duration_seconds",
			Help:    "Duration of enrichment calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_notify_failures_total",
			Help: "Notification deliveries that failed.",
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.IncidentsCreated,
		m.BatchEvents,
		m.BatchSignatures,
		m.BatchFailedGroups,
		m.VersionConflicts,
		m.RejectedEvents,
		m.EnrichmentsTotal,
		m.EnrichmentDuration,
		m.NotifyFailures,
	)

	return m
}
