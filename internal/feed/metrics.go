package feed

import "github.com/prometheus/client_golang/prometheus"

var (
	subscriberGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agenda",
		Subsystem: "feed",
		Name:      "subscribers",
		Help:      "Current number of live snapshot subscriptions.",
	})

	deliveryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "feed",
		Name:      "deliveries_total",
		Help:      "Number of snapshot deliveries fanned out to subscribers.",
	})

	deliveryErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "feed",
		Name:      "delivery_errors_total",
		Help:      "Number of snapshot queries that failed and terminated subscriptions.",
	})
)

func init() {
	prometheus.MustRegister(subscriberGauge, deliveryCounter, deliveryErrorCounter)
}
