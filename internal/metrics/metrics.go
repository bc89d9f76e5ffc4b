package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "intents_total",
			Help:      "Total number of intents created, partitioned by authority mode.",
		},
		[]string{"authority"},
	)

	timelineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "timeline_events_total",
			Help:      "Total number of timeline events recorded, partitioned by event type.",
		},
		[]string{"type"},
	)

	runVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "run_verdicts_total",
			Help:      "Terminal run verdicts, partitioned by mode and status.",
		},
		[]string{"mode", "status"},
	)

	evaluationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remedy",
			Name:      "evaluation_seconds",
			Help:      "Guardrail evaluation latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	rollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "rollbacks_total",
			Help:      "Automatic rollbacks, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches the engine's collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		intentsTotal,
		timelineEventsTotal,
		runVerdictsTotal,
		evaluationSeconds,
		rollbacksTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// IncIntent counts a created intent by authority mode.
func IncIntent(authority string) {
	intentsTotal.WithLabelValues(authority).Inc()
}

// IncTimelineEvent counts a recorded timeline event by type.
func IncTimelineEvent(eventType string) {
	timelineEventsTotal.WithLabelValues(eventType).Inc()
}

// IncRunVerdict counts a run reaching a terminal status.
func IncRunVerdict(mode, status string) {
	runVerdictsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveEvaluation records how long a guardrail evaluation took.
func ObserveEvaluation(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	evaluationSeconds.Observe(duration.Seconds())
}

// IncRollback counts an automatic rollback attempt; result is "ok" or "failed".
func IncRollback(result string) {
	rollbacksTotal.WithLabelValues(result).Inc()
}
