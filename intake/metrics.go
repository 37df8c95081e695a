package intake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultProcessed = "processed"
	resultDropped   = "dropped"
	resultFailed    = "failed"
	resultViolation = "violation"
)

type metrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matterfed",
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Federation events handled, by type and result.",
		}, []string{"type", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matterfed",
			Subsystem: "intake",
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one federation event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
}
