package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the application lifecycle module.
// Tracks creations, duplicate rejections, idempotent replays, status
// transitions and the stats cache hit ratio.
type Metrics struct {
	ApplicationsCreated *prometheus.CounterVec
	DuplicatesRejected  *prometheus.CounterVec
	IdempotentReplays   prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	StatsCacheHits      prometheus.Counter
	StatsCacheMisses    prometheus.Counter
	CreateDuration      prometheus.Histogram
}

// New creates a new Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		ApplicationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_applications_created_total",
			Help: "Total number of loan applications created",
		}, []string{"country"}),
		DuplicatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_duplicate_applications_rejected_total",
			Help: "Total creations rejected because an active application already exists",
		}, []string{"country"}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loanflow_idempotent_replays_total",
			Help: "Total creations answered from an existing idempotency key",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_status_transitions_total",
			Help: "Total committed application status transitions",
		}, []string{"from", "to"}),
		StatsCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loanflow_stats_cache_hits_total",
			Help: "Total statistics reads served from the cache",
		}),
		StatsCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loanflow_stats_cache_misses_total",
			Help: "Total statistics reads that fell through to the database",
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loanflow_application_create_duration_seconds",
			Help:    "Duration of application create operations including the lock window",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful application creation.
func (m *Metrics) IncrementCreated(country string) {
	m.ApplicationsCreated.WithLabelValues(country).Inc()
}

// IncrementDuplicateRejected records a creation rejected by the duplicate check.
func (m *Metrics) IncrementDuplicateRejected(country string) {
	m.DuplicatesRejected.WithLabelValues(country).Inc()
}

// IncrementIdempotentReplay records a creation answered by replay.
func (m *Metrics) IncrementIdempotentReplay() {
	m.IdempotentReplays.Inc()
}

// IncrementTransition records a committed status transition.
func (m *Metrics) IncrementTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// ObserveCreate records the duration of a create operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
