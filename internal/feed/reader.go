// Package feed maintains the TCP connection to the timing decoder and delivers its lines.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/yourusername/kart-timing/internal/config"
	"github.com/yourusername/kart-timing/internal/logger"
	"github.com/yourusername/kart-timing/internal/metrics"
)

// LineHandler receives each complete line read from the feed.
type LineHandler interface {
	HandleLine(ctx context.Context, line string)
}

// LineHandlerFunc adapts a function to LineHandler.
type LineHandlerFunc func(ctx context.Context, line string)

// HandleLine calls f.
func (f LineHandlerFunc) HandleLine(ctx context.Context, line string) {
	f(ctx, line)
}

// Config holds the connection and reconnect settings
type Config struct {
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ConfigFrom builds reader settings from the application config
func ConfigFrom(cfg config.FeedConfig) Config {
	return Config{
		Address:        cfg.Address(),
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
}

// ErrStopped is returned by Run when Stop was called before it started
var ErrStopped = errors.New("feed reader stopped")

// Reader connects to the feed, reads lines until the connection fails, and reconnects
// with exponential backoff until its context is cancelled.
type Reader struct {
	cfg     Config
	handler LineHandler
	log     *logger.FeedLogger
	clock   clockwork.Clock

	connected atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// Option configures a Reader
type Option func(*Reader)

// WithClock sets the clock used for backoff waits
func WithClock(clock clockwork.Clock) Option {
	return func(r *Reader) { r.clock = clock }
}

// NewReader creates a reader delivering lines to handler
func NewReader(cfg Config, handler LineHandler, log *logger.FeedLogger, opts ...Option) *Reader {
	r := &Reader{
		cfg:     cfg,
		handler: handler,
		log:     log,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connected reports whether a feed connection is currently open
func (r *Reader) Connected() bool {
	return r.connected.Load()
}

// Stop ends Run and closes any open connection
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
}

// Run blocks reading the feed until ctx is cancelled or Stop is called.
// Connection failures are never returned; they are logged and retried.
func (r *Reader) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.cancel = cancel
	r.mu.Unlock()

	b := newBackOff(r.cfg)
	attempt := 0
	for {
		attempt++
		established, err := r.readSession(ctx, attempt, b)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			attempt = 0
		}

		wait := b.NextBackOff()
		r.log.LogDisconnected(r.cfg.Address, err, wait)
		metrics.SetFeedConnected(false)

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(wait):
		}
	}
}

// newBackOff returns the reconnect schedule: initial, doubling, capped, never giving up
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// readSession dials once and reads until the connection drops.
// It reports whether the dial succeeded along with the error that ended the session.
func (r *Reader) readSession(ctx context.Context, attempt int, b *backoff.ExponentialBackOff) (bool, error) {
	dialer := net.Dialer{Timeout: r.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.cfg.Address)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", r.cfg.Address, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	b.Reset()
	r.connected.Store(true)
	defer r.connected.Store(false)
	metrics.SetFeedConnected(true)
	r.log.LogConnected(r.cfg.Address, attempt)

	br := bufio.NewReader(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout)); err != nil {
			return true, fmt.Errorf("set read deadline: %w", err)
		}
		line, err := br.ReadString('\n')
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		r.handler.HandleLine(ctx, line)
	}
}
