package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Official results metrics
var (
	OfficialPublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "official_publishes_total",
		Help:      "Total number of official result publications by session type",
	}, []string{"session_type"})

	PointAwardsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "point_awards_total",
		Help:      "Total number of point award rows written by award type",
	}, []string{"award_type"})

	PublishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "publish_duration_seconds",
		Help:      "Duration of official publication in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// RecordOfficialPublish records one publication and the awards it wrote.
func RecordOfficialPublish(sessionType, awardType string, awards int, duration time.Duration) {
	OfficialPublishesTotal.WithLabelValues(sessionType).Inc()
	if awardType != "" && awards > 0 {
		PointAwardsTotal.WithLabelValues(awardType).Add(float64(awards))
	}
	PublishDuration.Observe(duration.Seconds())
}
