// Package logger provides timing feed logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FeedLogger provides dedicated logging for the feed transport and parser.
// Noisy events are throttled so a misbehaving decoder cannot flood the log.
type FeedLogger struct {
	*logrus.Entry
	malformed rate.Sometimes
}

// NewFeedLogger creates a new feed logger.
func NewFeedLogger(baseLogger *logrus.Logger) *FeedLogger {
	return &FeedLogger{
		Entry:     baseLogger.WithField("component", "feed"),
		malformed: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// LogConnected logs a successful connection to the feed.
func (fl *FeedLogger) LogConnected(addr string, attempt int) {
	fl.WithFields(logrus.Fields{
		"addr":    addr,
		"attempt": attempt,
	}).Info("Connected to timing feed")
}

// LogDisconnected logs a dropped connection and the wait before redialing.
func (fl *FeedLogger) LogDisconnected(addr string, err error, wait time.Duration) {
	fl.WithFields(logrus.Fields{
		"addr":       addr,
		"error":      err,
		"backoff_ms": wait.Milliseconds(),
	}).Warn("Timing feed connection lost, reconnecting")
}

// LogMalformed logs an ignored record at debug level, throttled.
func (fl *FeedLogger) LogMalformed(line string) {
	fl.malformed.Do(func() {
		fl.WithField("line", line).Debug("Ignoring unrecognised feed record")
	})
}

// LogSessionChange logs a session identity change reported by the feed.
func (fl *FeedLogger) LogSessionChange(oldName, newName string) {
	fl.WithFields(logrus.Fields{
		"old_session": oldName,
		"new_session": newName,
	}).Info("Feed session changed, live state reset")
}
