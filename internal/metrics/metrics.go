package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_ingest_records_fetched_total",
			Help: "Raw records fetched from a source during ingestion cycles",
		},
		[]string{"agency"},
	)

	recordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_ingest_records_upserted_total",
			Help: "Normalized records committed to the store",
		},
		[]string{"agency", "outcome"},
	)

	sourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_ingest_source_failures_total",
			Help: "Connector fetches that failed after retries",
		},
		[]string{"agency"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crownsafe_ingest_cycle_duration_seconds",
			Help:    "Wall time of a full ingestion cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	matchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_match_queries_total",
			Help: "Match queries answered, labelled by winning tier",
		},
		[]string{"tier"},
	)

	planOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_plans_total",
			Help: "Executed plans by final status",
		},
		[]string{"status"},
	)

	stepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crownsafe_plan_steps_total",
			Help: "Executed plan steps by terminal state",
		},
		[]string{"state"},
	)
)

func RecordFetched(agency string, n int) {
	recordsFetched.WithLabelValues(agency).Add(float64(n))
}

func RecordUpserted(agency, outcome string, n int) {
	recordsUpserted.WithLabelValues(agency, outcome).Add(float64(n))
}

func RecordSourceFailure(agency string) {
	sourceFailures.WithLabelValues(agency).Inc()
}

func ObserveCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

func RecordMatchQuery(tier string) {
	matchQueries.WithLabelValues(tier).Inc()
}

func RecordPlanOutcome(status string) {
	planOutcomes.WithLabelValues(status).Inc()
}

func RecordStepOutcome(state string) {
	stepOutcomes.WithLabelValues(state).Inc()
}
