package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signalops"

// Ingestion outcomes
const (
	IngestOutcomeCreated       = "created"
	IngestOutcomeReplayed      = "replayed"
	IngestOutcomeQuotaExceeded = "quota_exceeded"
	IngestOutcomeFailed        = "failed"
)

// Job outcomes
const (
	JobOutcomeSucceeded    = "succeeded"
	JobOutcomeRetried      = "retried"
	JobOutcomeDeadLettered = "dead_lettered"
)

// Generic success/failure outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps collaborators usable without a registry.
type Metrics struct {
	eventsIngested    *prometheus.CounterVec
	softLimitReached  prometheus.Counter
	enqueueFailures   prometheus.Counter
	jobsProcessed     *prometheus.CounterVec
	jobDuration       prometheus.Histogram
	notificationsSent *prometheus.CounterVec
	outboxRelayed     *prometheus.CounterVec
}

// NewMetrics registers all collectors on registerer.
// Passing nil uses prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		eventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Ingestion attempts by outcome.",
		}, []string{"outcome"}),
		softLimitReached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_soft_limit_total",
			Help:      "Ingestions accepted while the tenant was at or above its soft limit.",
		}),
		enqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_failures_total",
			Help:      "Events committed to storage that could not be enqueued.",
		}),
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Queue jobs handled by outcome.",
		}, []string{"outcome"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent processing a single queue job.",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification sends by channel and outcome.",
		}, []string{"channel", "outcome"}),
		outboxRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox entries relayed to the queue by outcome.",
		}, []string{"outcome"}),
	}
}

// EventIngested counts an ingestion attempt
func (m *Metrics) EventIngested(outcome string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(outcome).Inc()
}

// SoftLimitReached counts an ingestion accepted above the soft limit
func (m *Metrics) SoftLimitReached() {
	if m == nil {
		return
	}
	m.softLimitReached.Inc()
}

// EnqueueFailed counts a post-commit enqueue failure
func (m *Metrics) EnqueueFailed() {
	if m == nil {
		return
	}
	m.enqueueFailures.Inc()
}

// JobProcessed counts a handled job and observes its duration in seconds
func (m *Metrics) JobProcessed(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(seconds)
}

// NotificationSent counts a provider send
func (m *Metrics) NotificationSent(channel, outcome string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel, outcome).Inc()
}

// OutboxRelayed counts an outbox relay attempt
func (m *Metrics) OutboxRelayed(outcome string) {
	if m == nil {
		return
	}
	m.outboxRelayed.WithLabelValues(outcome).Inc()
}
