package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadbot"

// Metrics holds the run's Prometheus collectors on a private registry.
// A batch job has no scrape endpoint, so the registry is written to a
// node-exporter textfile at the end of a run.
type Metrics struct {
	registry *prometheus.Registry

	RecordsFetched   *prometheus.CounterVec
	RecordsMalformed *prometheus.CounterVec
	SourceDegraded   *prometheus.CounterVec
	NovelRecords     prometheus.Counter
	SearchQueries    prometheus.Counter
	Verifications    *prometheus.CounterVec
	ContactsFound    prometheus.Counter
	TriageFailures   prometheus.Counter
	LeadsEmitted     *prometheus.GaugeVec
	StageDuration    *prometheus.HistogramVec
	LastSuccess      prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Registry records fetched, by source.",
		}, []string{"source"}),
		RecordsMalformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_malformed_total",
			Help:      "Registry rows dropped as malformed, by source.",
		}, []string{"source"}),
		SourceDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_unavailable_total",
			Help:      "Runs in which a source could not be fetched.",
		}, []string{"source"}),
		NovelRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "novel_records_total",
			Help:      "Records not seen by any earlier run.",
		}),
		SearchQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search API queries issued.",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Website verification attempts, by outcome.",
		}, []string{"outcome"}),
		ContactsFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_found_total",
			Help:      "Verified leads with at least one public contact.",
		}),
		TriageFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_failures_total",
			Help:      "Triage notes that could not be produced.",
		}),
		LeadsEmitted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leads_emitted",
			Help:      "Leads emitted by the last run, by case type.",
		}, []string{"case_type"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed run.",
		}),
	}
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
