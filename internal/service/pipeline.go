package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/kart-timing/internal/metrics"
	"github.com/yourusername/kart-timing/internal/timing"
)

// LivePipeline feeds raw lines through the parser and writes every change
// through the ingestor. It owns the live state; lines and ticks are serialized.
type LivePipeline struct {
	mu       sync.Mutex
	parser   *timing.Parser
	ingestor *Ingestor
	log      *logrus.Entry
}

// NewLivePipeline creates a pipeline around parser and ingestor
func NewLivePipeline(parser *timing.Parser, ingestor *Ingestor, log *logrus.Logger) *LivePipeline {
	entry := log.WithField("component", "pipeline")
	parser.OnLapRejected = func(number string, lap time.Duration) {
		metrics.RecordLapRejected()
		entry.WithFields(logrus.Fields{
			"number": number,
			"lap":    lap,
		}).Debug("Discarded implausible lap")
	}
	return &LivePipeline{
		parser:   parser,
		ingestor: ingestor,
		log:      entry,
	}
}

// HandleLine applies one feed line and writes the live state when the line
// changed it or resolved a crossing window. Storage failures are logged and the
// line is dropped; the next change retries the whole snapshot.
func (p *LivePipeline) HandleLine(ctx context.Context, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	applied, resolved := p.parser.ParseLine(line)
	metrics.RecordFeedLine(applied)
	if !applied && !resolved {
		return
	}

	if err := p.ingestor.Apply(ctx, p.parser.State()); err != nil {
		p.log.WithError(err).Error("Failed to ingest live state")
	}
}

// Tick resolves an expired crossing window while the feed is quiet and
// writes the new order. It reports whether a window was resolved.
func (p *LivePipeline) Tick(ctx context.Context, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.parser.TryResolveWindow(now) {
		return false
	}
	if err := p.ingestor.Apply(ctx, p.parser.State()); err != nil {
		p.log.WithError(err).Error("Failed to ingest live state")
	}
	return true
}

// State exposes the live state. Callers must not use it while lines are being handled.
func (p *LivePipeline) State() *timing.LiveState {
	return p.parser.State()
}

// Ingestor returns the ingestor behind the pipeline
func (p *LivePipeline) Ingestor() *Ingestor {
	return p.ingestor
}
