// Package metrics provides the centralized Prometheus metrics registry for the timing service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "kart_timing"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Ingest metrics
var (
	SnapshotsAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_applied_total",
		Help:      "Total number of live state snapshots written to storage",
	})
	IngestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_errors_total",
		Help:      "Total number of snapshot writes that failed and were rolled back",
	})
	LapsPersistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "laps_persisted_total",
		Help:      "Total number of lap rows written",
	})
	EntityMergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entity_merges_total",
		Help:      "Total number of duplicate entities merged by kind",
	}, []string{"kind"})
	LiveKarts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_karts",
		Help:      "Number of karts in the current live session",
	})
	IngestApplyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_apply_duration_seconds",
		Help:      "Duration of one snapshot write in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register ingest metrics
		registry.MustRegister(SnapshotsAppliedTotal)
		registry.MustRegister(IngestErrorsTotal)
		registry.MustRegister(LapsPersistedTotal)
		registry.MustRegister(EntityMergesTotal)
		registry.MustRegister(LiveKarts)
		registry.MustRegister(IngestApplyDuration)

		// Register feed metrics
		registry.MustRegister(FeedLinesTotal)
		registry.MustRegister(FeedConnectsTotal)
		registry.MustRegister(FeedDisconnectsTotal)
		registry.MustRegister(FeedConnected)
		registry.MustRegister(LapsRejectedTotal)

		// Register results metrics
		registry.MustRegister(OfficialPublishesTotal)
		registry.MustRegister(PointAwardsTotal)
		registry.MustRegister(PublishDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// Serve exposes the registry on port and path until ctx is cancelled.
func Serve(ctx context.Context, port, path string, log *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	if log != nil {
		log.WithFields(logrus.Fields{"port": port, "path": path}).Info("Metrics server starting")
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RecordSnapshotApplied records a committed snapshot write.
func RecordSnapshotApplied(duration time.Duration, karts int) {
	SnapshotsAppliedTotal.Inc()
	IngestApplyDuration.Observe(duration.Seconds())
	LiveKarts.Set(float64(karts))
}

// RecordIngestError records a rolled back snapshot write.
func RecordIngestError() {
	IngestErrorsTotal.Inc()
}

// RecordLapsPersisted records written lap rows.
func RecordLapsPersisted(n int) {
	LapsPersistedTotal.Add(float64(n))
}

// RecordEntityMerge records a merge of duplicate events, classes or sessions.
func RecordEntityMerge(kind string) {
	EntityMergesTotal.WithLabelValues(kind).Inc()
}
