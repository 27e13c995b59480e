package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// migrationsTotal counts finished migrations by outcome (succeeded|failed|rejected).
	migrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvthread_migrations_total",
			Help: "Total number of thread migrations by outcome.",
		},
		[]string{"outcome"},
	)

	// migrationDuration records wall-clock time of a migration in seconds.
	migrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mvthread_migration_duration_seconds",
			Help:    "Duration of thread migrations in seconds.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// messagesReplayed counts replayed messages by status (posted|skipped|failed).
	messagesReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvthread_messages_replayed_total",
			Help: "Total number of messages replayed after the seed, by status.",
		},
		[]string{"status"},
	)

	// attachmentsTotal counts attachment re-hosting attempts by result (rehosted|dropped).
	attachmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvthread_attachments_total",
			Help: "Total number of attachments re-hosted or dropped.",
		},
		[]string{"result"},
	)

	// migrationInflight is 1 while the single-flight guard is held.
	migrationInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mvthread_migration_inflight",
			Help: "Whether a migration currently holds the single-flight guard.",
		},
	)
)

func init() {
	prometheus.MustRegister(migrationsTotal, migrationDuration, messagesReplayed, attachmentsTotal, migrationInflight)
}

// ObserveRejected counts an invocation refused before any migration work started.
func ObserveRejected() {
	migrationsTotal.WithLabelValues("rejected").Inc()
}
