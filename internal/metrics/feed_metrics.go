package metrics

import "github.com/prometheus/client_golang/prometheus"

// Feed transport and decoder metrics
var (
	FeedLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_lines_total",
		Help:      "Total number of feed lines received by outcome",
	}, []string{"outcome"})

	FeedConnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_connects_total",
		Help:      "Total number of successful feed connections",
	})

	FeedDisconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_disconnects_total",
		Help:      "Total number of dropped feed connections and failed dials",
	})

	FeedConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_connected",
		Help:      "Whether the feed connection is currently up",
	})

	LapsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "laps_rejected_total",
		Help:      "Total number of derived laps outside the plausible band",
	})
)

// RecordFeedLine records one received line as applied or ignored.
func RecordFeedLine(applied bool) {
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	FeedLinesTotal.WithLabelValues(outcome).Inc()
}

// SetFeedConnected updates the connection gauge and counters.
func SetFeedConnected(up bool) {
	if up {
		FeedConnectsTotal.Inc()
		FeedConnected.Set(1)
		return
	}
	FeedDisconnectsTotal.Inc()
	FeedConnected.Set(0)
}

// RecordLapRejected records an implausible derived lap.
func RecordLapRejected() {
	LapsRejectedTotal.Inc()
}
