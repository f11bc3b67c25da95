package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/kart-timing/internal/feed"
	"github.com/yourusername/kart-timing/internal/health"
	"github.com/yourusername/kart-timing/internal/logger"
	"github.com/yourusername/kart-timing/internal/metrics"
	"github.com/yourusername/kart-timing/internal/notify"
	"github.com/yourusername/kart-timing/internal/scheduler"
	"github.com/yourusername/kart-timing/internal/service"
	"github.com/yourusername/kart-timing/internal/timing"
)

var (
	feedHost string
	feedPort int
)

func init() {
	listenCmd.Flags().StringVar(&feedHost, "host", "", "Override the feed host from config")
	listenCmd.Flags().IntVar(&feedPort, "port", 0, "Override the feed port from config")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to the timing feed and ingest live standings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen(cmd.Context())
	},
}

func runListen(parent context.Context) error {
	if feedHost != "" {
		cfg.Feed.Host = feedHost
	}
	if feedPort > 0 {
		cfg.Feed.Port = feedPort
	}

	appLogger.WithFields(logrus.Fields{
		"version":     Version,
		"commit":      GitCommit,
		"environment": cfg.App.Environment,
		"storage":     cfg.Storage.Driver,
		"feed":        cfg.Feed.Address(),
	}).Info("Starting kart timing listener")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	notifier, err := notify.New(cfg.Events, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect notifier: %w", err)
	}
	defer notifier.Close()

	feedLog := logger.NewFeedLogger(appLogger)
	parser := timing.NewParser(timing.Config{
		MinLap:         cfg.Timing.MinLap,
		MaxLap:         cfg.Timing.MaxLap,
		CrossingWindow: cfg.Timing.CrossingWindow,
	}, nil, feedLog)
	ingestor := service.NewIngestor(repos, appLogger, service.WithNotifier(notifier))
	pipeline := service.NewLivePipeline(parser, ingestor, appLogger)
	reader := feed.NewReader(feed.ConfigFrom(cfg.Feed), feed.LineHandlerFunc(pipeline.HandleLine), feedLog)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		go func() {
			if err := metrics.Serve(ctx, strconv.Itoa(cfg.Metrics.Port), cfg.Metrics.Path, appLogger); err != nil {
				appLogger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	healthServer := newHealthServer(reader)
	if err := healthServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	jobs, err := newScheduler(ctx, pipeline, ingestor)
	if err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	if jobs != nil {
		if err := jobs.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer jobs.Stop()
	}

	done := make(chan error, 1)
	go func() {
		done <- reader.Run(ctx)
	}()
	healthServer.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		appLogger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case <-ctx.Done():
	}

	healthServer.SetReady(false)
	reader.Stop()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, feed.ErrStopped) {
		appLogger.WithError(err).Warn("Feed reader stopped with error")
	}

	appLogger.WithField("stats", ingestor.Stats().String()).Info("Listener stopped")
	return nil
}

// newScheduler returns nil when every job is disabled
func newScheduler(ctx context.Context, pipeline *service.LivePipeline, ingestor *service.Ingestor) (*scheduler.Scheduler, error) {
	if cfg.Schedule.WindowTick <= 0 && cfg.Schedule.StatsInterval <= 0 {
		return nil, nil
	}
	jobs := scheduler.NewScheduler(appLogger, nil)
	if cfg.Schedule.WindowTick > 0 {
		if err := jobs.ScheduleWindowTick(ctx, cfg.Schedule.WindowTick, pipeline); err != nil {
			return nil, err
		}
	}
	if cfg.Schedule.StatsInterval > 0 {
		if err := jobs.ScheduleStatsReport(cfg.Schedule.StatsInterval, ingestor.Stats()); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func newHealthServer(reader *feed.Reader) *health.Server {
	hc := health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Logger:      appLogger,
		Feed:        reader,
	}
	if cfg.Health.Port > 0 {
		hc.Port = strconv.Itoa(cfg.Health.Port)
	}
	if db != nil {
		hc.DB = db
	}
	return health.NewServer(hc)
}
