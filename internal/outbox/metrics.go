package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Change events published to Kafka.",
	})

	failedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Change events that could not be published.",
	})

	parkedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "outbox",
		Name:      "events_parked_total",
		Help:      "Change events moved to the dead-letter table, by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agenda",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, publish, and mark one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	sweepResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "dlq",
		Name:      "sweep_results_total",
		Help:      "Dead-letter sweep outcomes, by event type and result (replayed, rescheduled, quarantined).",
	}, []string{"event_type", "result"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agenda",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Dead-letter entries not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(deliveredTotal, failedTotal, parkedTotal, batchDuration, sweepResults, dlqBacklog)
}
