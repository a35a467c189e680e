package domain

import "github.com/prometheus/client_golang/prometheus"

var conflictCheckDegradedCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agenda",
	Subsystem: "scheduling",
	Name:      "conflict_checks_degraded_total",
	Help:      "Number of conflict checks that returned no-conflict because the window query failed.",
})

func init() {
	prometheus.MustRegister(conflictCheckDegradedCounter)
}

func recordConflictCheckDegraded() {
	conflictCheckDegradedCounter.Inc()
}
