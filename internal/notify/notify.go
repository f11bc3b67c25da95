// Package notify tells collaborators when a session changes status.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/kart-timing/internal/config"
	"github.com/yourusername/kart-timing/internal/models"
)

// SessionEvent is published when a session becomes provisional or official
type SessionEvent struct {
	SessionID uuid.UUID            `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Version   int                  `json:"version,omitempty"`
	At        time.Time            `json:"at"`
}

// Notifier publishes session events
type Notifier interface {
	Notify(ctx context.Context, ev SessionEvent) error
	Close()
}

// New returns a NATS notifier, or a no-op one when no URL is configured
func New(cfg config.EventsConfig, log *logrus.Logger) (Notifier, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	return NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, log)
}

// Subject returns the subject an event is published on
func Subject(prefix string, status models.SessionStatus) string {
	if prefix == "" {
		prefix = "kart"
	}
	return fmt.Sprintf("%s.session.%s", prefix, status)
}

// NATSPublisher publishes session events as JSON on core NATS subjects
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *logrus.Entry
}

// NewNATSPublisher connects to url and reconnects in the background for as long as it lives
func NewNATSPublisher(url, prefix string, log *logrus.Logger) (*NATSPublisher, error) {
	entry := log.WithField("component", "notify")
	opts := []nats.Option{
		nats.Name("kart-timing"),
		nats.Timeout(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				entry.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: entry}, nil
}

// Notify publishes ev. Delivery is fire-and-forget.
func (p *NATSPublisher) Notify(_ context.Context, ev SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	subject := Subject(p.prefix, ev.Status)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.WithFields(logrus.Fields{
		"subject":    subject,
		"session_id": ev.SessionID,
		"version":    ev.Version,
	}).Debug("Published session event")
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Noop discards events
type Noop struct{}

func (Noop) Notify(context.Context, SessionEvent) error { return nil }
func (Noop) Close()                                     {}

// Recorder keeps events in memory; used by dry runs and tests
type Recorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *Recorder) Notify(_ context.Context, ev SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionEvent(nil), r.events...)
}
