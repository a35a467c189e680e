package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Consumed records, by topic, event type, and result (ok, handler_error).",
	}, []string{"topic", "event_type", "result"})

	decodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Subsystem: "consumer",
		Name:      "decode_failures_total",
		Help:      "Records committed without handling because they could not be decoded.",
	}, []string{"topic"})

	lastRecordTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agenda",
		Subsystem: "consumer",
		Name:      "last_record_timestamp_seconds",
		Help:      "Producer timestamp of the most recent successfully handled record.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(recordsTotal, decodeFailures, lastRecordTime)
}

func recordResult(msg Message, result string) {
	recordsTotal.WithLabelValues(msg.Topic, msg.EventType, result).Inc()
	if result == "ok" && !msg.Timestamp.IsZero() {
		lastRecordTime.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordDecodeFailure(topic string) {
	decodeFailures.WithLabelValues(topic).Inc()
}
