// Package observability exposes service-level freshness metrics shared
// across binaries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistWatermark = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agenda",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recently persisted activity.",
	})

	activitiesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "persistence",
		Name:      "activities_persisted_total",
		Help:      "Total number of activities written to storage.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistWatermark, activitiesPersisted)
}

// RecordActivityPersisted advances the persistence watermark.
func RecordActivityPersisted(createdAt time.Time) {
	activitiesPersisted.Inc()
	activityPersistWatermark.Set(float64(createdAt.Unix()))
}
