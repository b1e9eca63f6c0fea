// Package metrics exposes Prometheus collectors for the content repository.
//
// Collectors are registered once on the default registry at package init and
// served by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
)

var (
	commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgraph_commands_total",
		Help: "Commands handled by type and outcome",
	}, []string{"type", "outcome"})

	eventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgraph_events_appended_total",
		Help: "Events appended to the event store by type",
	}, []string{"type"})

	projectionApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgraph_projection_events_applied_total",
		Help: "Events applied by each projection",
	}, []string{"projection"})

	projectionCheckpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "contentgraph_projection_checkpoint",
		Help: "Last applied global sequence number per projection",
	}, []string{"projection"})

	catchUpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentgraph_projection_catchup_duration_seconds",
		Help:    "Time spent in one projection catch-up run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"projection"})

	rebaseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgraph_workspace_rebases_total",
		Help: "Workspace rebase attempts by outcome",
	}, []string{"outcome"})
)

// CommandHandled records one command outcome.
func CommandHandled(commandType, outcome string) {
	commandsHandled.WithLabelValues(commandType, outcome).Inc()
}

// EventAppended records one stored event.
func EventAppended(eventType string) {
	eventsAppended.WithLabelValues(eventType).Inc()
}

// ProjectionApplied records an applied event and the new checkpoint.
func ProjectionApplied(projection string, seq uint64) {
	projectionApplied.WithLabelValues(projection).Inc()
	projectionCheckpoint.WithLabelValues(projection).Set(float64(seq))
}

// ProjectionReset rewinds the checkpoint gauge.
func ProjectionReset(projection string) {
	projectionCheckpoint.WithLabelValues(projection).Set(0)
}

// ObserveCatchUp records how long a catch-up run took.
func ObserveCatchUp(projection string, elapsed time.Duration) {
	catchUpDuration.WithLabelValues(projection).Observe(elapsed.Seconds())
}

// RebaseFinished records one rebase outcome.
func RebaseFinished(outcome string) {
	rebaseOutcomes.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
